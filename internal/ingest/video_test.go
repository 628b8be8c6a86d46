package ingest

import "testing"

func TestVideoConfig_WithDefaultsFillsQueueSize(t *testing.T) {
	got := VideoConfig{Source: "cam0"}.withDefaults()

	if got.QueueSize != 4 {
		t.Errorf("QueueSize = %d, want 4", got.QueueSize)
	}
	if got.Source != "cam0" {
		t.Errorf("Source = %q, want %q", got.Source, "cam0")
	}
}

func TestVideoConfig_WithDefaultsPreservesExplicitQueueSize(t *testing.T) {
	got := VideoConfig{Source: "cam0", QueueSize: 16}.withDefaults()

	if got.QueueSize != 16 {
		t.Errorf("QueueSize = %d, want 16", got.QueueSize)
	}
}
