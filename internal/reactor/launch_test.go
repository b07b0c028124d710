package reactor

import (
	"testing"

	"github.com/wonop-io/rushd/internal/builder"
	"github.com/wonop-io/rushd/internal/stackspec"
)

func TestLaunchPriorityRootsGetOne(t *testing.T) {
	specs := []*stackspec.ComponentSpec{
		{ComponentName: "db"},
		{ComponentName: "api", DependsOn: []string{"db"}},
		{ComponentName: "web", DependsOn: []string{"api"}},
	}
	priority := launchPriority(specs)

	if priority["db"] != 1 {
		t.Errorf("db priority = %d, want 1 (no dependencies)", priority["db"])
	}
	if priority["api"] != 2 {
		t.Errorf("api priority = %d, want 2", priority["api"])
	}
	if priority["web"] != 3 {
		t.Errorf("web priority = %d, want 3", priority["web"])
	}
}

func TestLaunchPriorityTakesLongestChain(t *testing.T) {
	// ingress depends on both api (chain length 2) and db (chain length
	// 1) directly; its own priority must follow the longer of the two.
	specs := []*stackspec.ComponentSpec{
		{ComponentName: "db"},
		{ComponentName: "api", DependsOn: []string{"db"}},
		{ComponentName: "ingress", DependsOn: []string{"api", "db"}},
	}
	priority := launchPriority(specs)

	if priority["ingress"] != 3 {
		t.Errorf("ingress priority = %d, want 3 (via the db->api->ingress chain)", priority["ingress"])
	}
}

func newTestReactor(specs []*stackspec.ComponentSpec) *Reactor {
	images := make(map[string]*builder.TaggedImage, len(specs))
	for _, s := range specs {
		images[s.ProductName+"-"+s.ComponentName] = &builder.TaggedImage{ImageName: s.ProductName + "-" + s.ComponentName}
	}
	return &Reactor{specs: specs, images: images}
}

func TestLaunchOrderGroupsByPriorityAscending(t *testing.T) {
	specs := []*stackspec.ComponentSpec{
		{ComponentName: "web", ProductName: "acme", DependsOn: []string{"api"}},
		{ComponentName: "db", ProductName: "acme"},
		{ComponentName: "api", ProductName: "acme", DependsOn: []string{"db"}},
	}
	r := newTestReactor(specs)

	tiers := r.launchOrder()
	if len(tiers) != 3 {
		t.Fatalf("len(tiers) = %d, want 3", len(tiers))
	}
	if len(tiers[0]) != 1 || tiers[0][0].Spec.ComponentName != "db" {
		t.Errorf("tier 0 = %v, want [db] (no dependencies, starts first)", tiers[0])
	}
	if len(tiers[1]) != 1 || tiers[1][0].Spec.ComponentName != "api" {
		t.Errorf("tier 1 = %v, want [api]", tiers[1])
	}
	if len(tiers[2]) != 1 || tiers[2][0].Spec.ComponentName != "web" {
		t.Errorf("tier 2 = %v, want [web]", tiers[2])
	}
}

func TestLaunchOrderGroupsIndependentComponentsTogether(t *testing.T) {
	specs := []*stackspec.ComponentSpec{
		{ComponentName: "cache", ProductName: "acme"},
		{ComponentName: "db", ProductName: "acme"},
	}
	r := newTestReactor(specs)

	tiers := r.launchOrder()
	if len(tiers) != 1 {
		t.Fatalf("len(tiers) = %d, want 1 (both components have no dependencies)", len(tiers))
	}
	if len(tiers[0]) != 2 {
		t.Errorf("len(tiers[0]) = %d, want 2", len(tiers[0]))
	}
}
