package world

import "fmt"

// Agent IDs start at 1; the zero value means "none".
type CarID int

func (id CarID) String() string { return fmt.Sprintf("Car #%d", int(id)) }

type PedestrianID int

func (id PedestrianID) String() string { return fmt.Sprintf("Ped #%d", int(id)) }

type TripID int

func (id TripID) String() string { return fmt.Sprintf("Trip #%d", int(id)) }
