package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trafficsim.ai/internal/sim/control"
	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

// Tuning is the operator-facing knob file. Zero fields fall back to Defaults.
type Tuning struct {
	Seed uint64 `yaml:"seed"`

	SpeedReportSeconds float64 `yaml:"speed_report_seconds"`
	TimeLimitMinutes   float64 `yaml:"time_limit_minutes"`

	Speeds  Speeds  `yaml:"speeds"`
	Control Control `yaml:"control"`
	Storage Storage `yaml:"storage"`

	ObserverAddr   string  `yaml:"observer_addr"`
	MetricsAddr    string  `yaml:"metrics_addr"`
	ObserverTickHz float64 `yaml:"observer_tick_hz"`
}

type Speeds struct {
	WalkMps         float64 `yaml:"walk_mps"`
	DriveMps        float64 `yaml:"drive_mps"`
	BusMps          float64 `yaml:"bus_mps"`
	BusDwellSeconds float64 `yaml:"bus_dwell_seconds"`
}

type Control struct {
	StopSignSeconds float64 `yaml:"stop_sign_seconds"`
	SignalSeconds   float64 `yaml:"signal_seconds"`
}

type Storage struct {
	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	// EventsDir holds the zstd event logs; IndexPath the SQLite run index. Empty disables each.
	EventsDir string `yaml:"events_dir"`
	IndexPath string `yaml:"index_path"`
}

func Defaults() Tuning {
	return Tuning{
		Seed:               42,
		SpeedReportSeconds: 60,
		TimeLimitMinutes:   60,
		Speeds: Speeds{
			WalkMps:         1.34,
			DriveMps:        10,
			BusMps:          8,
			BusDwellSeconds: 10,
		},
		Control: Control{
			StopSignSeconds: 3,
			SignalSeconds:   15,
		},
		Storage: Storage{
			Backend: "file",
			Path:    "data",
		},
		ObserverTickHz: 10,
	}
}

func (t *Tuning) applyDefaults() {
	d := Defaults()
	if t.SpeedReportSeconds <= 0 {
		t.SpeedReportSeconds = d.SpeedReportSeconds
	}
	if t.TimeLimitMinutes <= 0 {
		t.TimeLimitMinutes = d.TimeLimitMinutes
	}
	if t.Speeds.WalkMps <= 0 {
		t.Speeds.WalkMps = d.Speeds.WalkMps
	}
	if t.Speeds.DriveMps <= 0 {
		t.Speeds.DriveMps = d.Speeds.DriveMps
	}
	if t.Speeds.BusMps <= 0 {
		t.Speeds.BusMps = d.Speeds.BusMps
	}
	if t.Speeds.BusDwellSeconds <= 0 {
		t.Speeds.BusDwellSeconds = d.Speeds.BusDwellSeconds
	}
	if t.Control.StopSignSeconds <= 0 {
		t.Control.StopSignSeconds = d.Control.StopSignSeconds
	}
	if t.Control.SignalSeconds <= 0 {
		t.Control.SignalSeconds = d.Control.SignalSeconds
	}
	if t.Storage.Backend == "" {
		t.Storage.Backend = d.Storage.Backend
	}
	if t.Storage.Path == "" {
		t.Storage.Path = d.Storage.Path
	}
	if t.ObserverTickHz <= 0 {
		t.ObserverTickHz = d.ObserverTickHz
	}
}

func (t *Tuning) validate() error {
	switch t.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("tuning.yaml: storage.backend %q (want file or sqlite)", t.Storage.Backend)
	}
	return nil
}

// Load reads path and fills unset fields from Defaults. Seed is taken as written, so an
// omitted seed means seed 0.
func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.validate(); err != nil {
		return t, err
	}
	return t, nil
}

// LoadOrDefault falls back to Defaults when path is empty.
func LoadOrDefault(path string) (Tuning, error) {
	if path == "" {
		return Defaults(), nil
	}
	return Load(path)
}

func (t Tuning) TimeLimit() simtime.Tick { return simtime.FromDuration(t.TimeLimitMinutes * 60) }

func (t Tuning) WorldConfig(id string) world.WorldConfig {
	return world.WorldConfig{
		ID:               id,
		Seed:             t.Seed,
		SpeedReportEvery: simtime.FromDuration(t.SpeedReportSeconds),
		WalkSpeed:        t.Speeds.WalkMps,
		DriveSpeed:       t.Speeds.DriveMps,
		BusSpeed:         t.Speeds.BusMps,
		BusDwellTicks:    simtime.FromDuration(t.Speeds.BusDwellSeconds),
	}
}

func (t Tuning) ControlConfig() control.Config {
	return control.Config{
		StopSignDelay: simtime.FromDuration(t.Control.StopSignSeconds),
		SignalDelay:   simtime.FromDuration(t.Control.SignalSeconds),
	}
}
