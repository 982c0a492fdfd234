package system

import (
	"testing"

	core "github.com/tascade-run/tascade/internal/core/service"
)

type descriptorService struct {
	Lifecycle
	name string
	d    core.Descriptor
}

func (s descriptorService) Name() string               { return s.name }
func (s descriptorService) Descriptor() core.Descriptor { return s.d }

func TestManagerDescriptorsSortsByLayerThenName(t *testing.T) {
	mgr := NewManager()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	must(mgr.Register(descriptorService{name: "b-core", d: core.Descriptor{Name: "b-core", Layer: core.LayerCore}}))
	must(mgr.Register(descriptorService{name: "httpapi", d: core.Descriptor{Name: "httpapi", Layer: core.LayerTransport}}))
	must(mgr.Register(descriptorService{name: "a-core", d: core.Descriptor{Name: "a-core", Layer: core.LayerCore}}))
	must(mgr.Register(&noopDescriptorlessService{}))

	descs := mgr.Descriptors()
	if len(descs) != 3 {
		t.Fatalf("expected 3 descriptors (the non-provider service skipped), got %d", len(descs))
	}
	if descs[0].Name != "a-core" || descs[1].Name != "b-core" || descs[2].Name != "httpapi" {
		t.Fatalf("expected layer-then-name ordering, got %+v", descs)
	}
}

func TestNormalizeDescriptorDefaultsBlankLayerToCore(t *testing.T) {
	out := normalizeDescriptor(core.Descriptor{Name: " svc ", Capabilities: []string{"x", "x", " "}})
	if out.Name != "svc" {
		t.Fatalf("expected trimmed name, got %q", out.Name)
	}
	if out.Layer != core.LayerCore {
		t.Fatalf("expected blank layer to default to LayerCore, got %q", out.Layer)
	}
	if len(out.Capabilities) != 1 || out.Capabilities[0] != "x" {
		t.Fatalf("expected deduped capabilities, got %v", out.Capabilities)
	}
}

type noopDescriptorlessService struct{ Lifecycle }

func (noopDescriptorlessService) Name() string { return "no-descriptor" }
