package engine

import "time"

// Config holds the run options.
type Config struct {
	// PauseOnMissing parks at a checkpoint when a guide is absent from the
	// lookup table instead of skipping it.
	PauseOnMissing bool `mapstructure:"pause_on_missing" json:"pause_on_missing"`
	// WaitForManualAction false ends the run at the first checkpoint,
	// leaving the engine PAUSED.
	WaitForManualAction      bool          `mapstructure:"wait_for_manual_action" json:"wait_for_manual_action"`
	DelayAfterNext           time.Duration `mapstructure:"delay_after_next" json:"delay_after_next"`
	CaptureScreenshotOnError bool          `mapstructure:"capture_screenshot_on_error" json:"capture_screenshot_on_error"`
	DiagnosticsDir           string        `mapstructure:"diagnostics_dir" json:"diagnostics_dir"`
	// CheckpointPoll bounds every wait on the resume gate.
	CheckpointPoll time.Duration `mapstructure:"checkpoint_poll" json:"checkpoint_poll"`
}

func DefaultConfig() Config {
	return Config{
		PauseOnMissing:           true,
		WaitForManualAction:      true,
		DelayAfterNext:           300 * time.Millisecond,
		CaptureScreenshotOnError: true,
		DiagnosticsDir:           "reports/screenshots",
		CheckpointPoll:           200 * time.Millisecond,
	}
}
