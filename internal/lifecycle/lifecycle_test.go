package lifecycle

import "testing"

func TestIsShuttingDown_DefaultFalse(t *testing.T) {
	Reset()
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
}

func TestSetShuttingDown(t *testing.T) {
	Reset()
	SetShuttingDown(true)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true), want true")
	}
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after SetShuttingDown(false), want false")
	}
}

func TestMarkReady(t *testing.T) {
	Reset()
	if IsReady() {
		t.Error("IsReady() = true before MarkReady")
	}
	MarkReady()
	if !IsReady() {
		t.Error("IsReady() = false after MarkReady")
	}
	Reset()
	if IsReady() {
		t.Error("IsReady() = true after Reset")
	}
}
