package config

import (
	"reflect"
	"testing"
)

func TestLoadGateFlags(t *testing.T) {
	t.Setenv("DISABLE_CONSENT", "true")
	t.Setenv("UNMANAGED_GAME", "1")
	t.Setenv("DISABLE_NO_GAMES", "nonsense")
	t.Setenv("INTRO_STEPS", "instructions, quiz,,")

	cfg := Load()
	flags := cfg.GateFlags()
	if !flags.DisableConsent || !flags.UnmanagedGame {
		t.Errorf("flags = %+v, want consent disabled and unmanaged game", flags)
	}
	if flags.DisableNoGames {
		t.Error("unparseable bool should fall back to default false")
	}
	if want := []string{"instructions", "quiz"}; !reflect.DeepEqual(cfg.IntroSteps, want) {
		t.Errorf("IntroSteps = %v, want %v", cfg.IntroSteps, want)
	}
	if cfg.ExitSteps != nil {
		t.Errorf("ExitSteps = %v, want nil", cfg.ExitSteps)
	}
}
