package service

import "testing"

func TestDescriptorBuildersAppendWithoutMutatingReceiver(t *testing.T) {
	base := Descriptor{Name: "httpapi", Domain: "transport", Layer: LayerTransport}
	built := base.WithCapabilities("rest").WithRequires("engine").WithDependsOn("engine")

	if len(base.Capabilities) != 0 || len(base.RequiresAPIs) != 0 || len(base.DependsOn) != 0 {
		t.Fatalf("expected base descriptor to be unmodified, got %+v", base)
	}
	if got := built.Capabilities; len(got) != 1 || got[0] != "rest" {
		t.Fatalf("expected Capabilities=[rest], got %v", got)
	}
	if got := built.RequiresAPIs; len(got) != 1 || got[0] != "engine" {
		t.Fatalf("expected RequiresAPIs=[engine], got %v", got)
	}
	if got := built.DependsOn; len(got) != 1 || got[0] != "engine" {
		t.Fatalf("expected DependsOn=[engine], got %v", got)
	}
}

func TestDescriptorBuildersIgnoreBlankEntries(t *testing.T) {
	d := Descriptor{}.WithRequires("  ", "engine").WithDependsOn("", "engine")
	if len(d.RequiresAPIs) != 1 || d.RequiresAPIs[0] != "engine" {
		t.Fatalf("expected blank RequiresAPIs entries to be dropped, got %v", d.RequiresAPIs)
	}
	if len(d.DependsOn) != 1 || d.DependsOn[0] != "engine" {
		t.Fatalf("expected blank DependsOn entries to be dropped, got %v", d.DependsOn)
	}
}
