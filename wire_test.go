package livecmp

import (
	"strings"
	"testing"
)

func TestInjectRootAttributes(t *testing.T) {
	attrs := []rootAttr{
		{"wire:id", "abc123"},
		{"wire:snapshot", `{"data":{"n":1}}`},
	}

	tests := []struct {
		name     string
		rendered string
		want     []string
		wantErr  bool
	}{
		{
			name:     "plain element",
			rendered: `<div class="card">hi</div>`,
			want:     []string{`<div class="card" wire:id="abc123"`, `>hi</div>`},
		},
		{
			name:     "value escaped",
			rendered: `<div>x</div>`,
			want:     []string{`wire:snapshot="{&#34;data&#34;:{&#34;n&#34;:1}}"`},
		},
		{
			name:     "self closing",
			rendered: `<input type="text"/>`,
			want:     []string{`<input type="text" wire:id="abc123"`, `/>`},
		},
		{
			name:     "leading comment skipped",
			rendered: `<!-- header --><section>x</section>`,
			want:     []string{`<section wire:id="abc123"`},
		},
		{
			name:     "no element",
			rendered: `just text`,
			wantErr:  true,
		},
		{
			name:     "unterminated tag",
			rendered: `<div`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := injectRootAttributes(tt.rendered, attrs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("injectRootAttributes() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  map[string]any
		key  string
		want string
	}{
		{"click", Click("Increment"), "wire:click", "Increment"},
		{"click with args", Click("Add", 5), "wire:click", "Add(5)"},
		{"click string arg", Click("Remove", "it'em"), "wire:click", `Remove('it\'em')`},
		{"submit", Submit("Save"), "wire:submit", "Save"},
		{"model", Model("Name"), "wire:model", "Name"},
		{"model live", ModelLive("Query"), "wire:model.live", "Query"},
		{"key", Key("row-7"), "wire:key", "row-7"},
		{"poll", Poll("5s", "Refresh"), "wire:poll.5s", "Refresh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got[tt.key]; got != tt.want {
				t.Errorf("attrs[%q] = %v, want %q", tt.key, got, tt.want)
			}
		})
	}
}
