package registry_test

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/HMasataka/hubconn/registry"
)

func TestGroups_Matches(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"both empty", nil, nil, true},
		{"left empty", nil, []string{"a"}, false},
		{"right empty", []string{"a"}, nil, false},
		{"shared label", []string{"a", "b"}, []string{"b", "c"}, true},
		{"disjoint", []string{"a"}, []string{"c"}, false},
		{"blank labels ignored", []string{" ", ""}, nil, true},
		{"trimmed", []string{" a "}, []string{"a"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := registry.NewGroups(tt.a...), registry.NewGroups(tt.b...)
			if got := a.Matches(b); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
			if got := b.Matches(a); got != tt.want {
				t.Errorf("Matches() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGroups_Names(t *testing.T) {
	g := registry.NewGroups("b", "a", "b")
	if got := g.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v, want [a b]", got)
	}
}

func TestRegistry_DeclareMergesByHubName(t *testing.T) {
	reg := registry.New()

	first := registry.Hub("chatHub", "east").Handle("messageReceived").Declaration()
	second := registry.Hub("chatHub", "west").
		Handle("messageReceived").
		On("userJoined", "OnUserJoined").
		Declaration()

	if err := reg.Declare(first); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	if err := reg.Declare(second); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	got, ok := reg.Lookup("chatHub")
	if !ok {
		t.Fatal("Lookup() ok = false")
	}
	want := []registry.Subscription{
		{Event: "messageReceived", Handler: "messageReceived"},
		{Event: "userJoined", Handler: "OnUserJoined"},
	}
	if !reflect.DeepEqual(got.Subscriptions, want) {
		t.Errorf("Subscriptions = %v, want %v", got.Subscriptions, want)
	}
	if names := got.Groups.Names(); !reflect.DeepEqual(names, []string{"east", "west"}) {
		t.Errorf("Groups = %v, want [east west]", names)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistry_DeclareEmptyName(t *testing.T) {
	reg := registry.New()

	err := reg.Declare(registry.Declaration{})
	if !errors.Is(err, registry.ErrInvalidDeclaration) {
		t.Fatalf("Declare() error = %v, want ErrInvalidDeclaration", err)
	}
}

func TestRegistry_LookupReturnsCopy(t *testing.T) {
	reg := registry.New()
	_ = reg.Declare(registry.Hub("h").Handle("a").Declaration())

	d, _ := reg.Lookup("h")
	d.Subscriptions[0].Event = "mutated"

	again, _ := reg.Lookup("h")
	if again.Subscriptions[0].Event != "a" {
		t.Errorf("registry mutated through returned copy: %v", again.Subscriptions)
	}
}

func TestRegistry_DeclarationsOrder(t *testing.T) {
	reg := registry.New()
	for _, name := range []string{"c", "a", "b", "a"} {
		_ = reg.Declare(registry.Hub(name).Handle("x").Declaration())
	}

	var names []string
	for _, d := range reg.Declarations() {
		names = append(names, d.HubName)
	}
	if !reflect.DeepEqual(names, []string{"c", "a", "b"}) {
		t.Errorf("Declarations() order = %v, want [c a b]", names)
	}
}

type prototype struct{ hub string }

func (p prototype) HubDeclaration() registry.Declaration {
	return registry.Hub(p.hub).Handle("ping").Declaration()
}

func TestRegistry_Collect(t *testing.T) {
	reg := registry.New()

	if err := reg.Collect(prototype{"one"}, prototype{"two"}); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}

	err := reg.Collect(prototype{""})
	if !errors.Is(err, registry.ErrInvalidDeclaration) {
		t.Errorf("Collect() error = %v, want ErrInvalidDeclaration", err)
	}
}

func TestRegistry_ConcurrentDeclare(t *testing.T) {
	reg := registry.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = reg.Declare(registry.Hub("shared").On("e", "h").Declaration())
			_ = reg.Declarations()
		}(i)
	}
	wg.Wait()

	d, _ := reg.Lookup("shared")
	if len(d.Subscriptions) != 1 {
		t.Errorf("Subscriptions = %d, want 1", len(d.Subscriptions))
	}
}

func TestBuilder_HandleDefaultsEventName(t *testing.T) {
	d := registry.Hub("h").Handle("Notify").On("", "Other").Handle("Notify").Declaration()

	want := []registry.Subscription{
		{Event: "Notify", Handler: "Notify"},
		{Event: "Other", Handler: "Other"},
	}
	if !reflect.DeepEqual(d.Subscriptions, want) {
		t.Errorf("Subscriptions = %v, want %v", d.Subscriptions, want)
	}
}
