// pkg/render/engo/input_test.go
package engo

import (
	"reflect"
	"testing"

	"github.com/EngoEngine/engo"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/input"
)

func TestInputSystem_Keys(t *testing.T) {
	held := map[string]bool{}
	is := newInputSystem(nil,
		func(name string) bool { return held[name] },
		func() engo.Mouse { return engo.Mouse{Action: engo.Neutral} },
	)

	tests := []struct {
		name    string
		pressed []string
		want    []input.Event
	}{
		{"nothing", nil, nil},
		{"arrow", []string{"up"}, []input.Event{input.Press(input.KeyUp)}},
		{"escape", []string{"escape"}, []input.Event{input.Press(input.KeyEscape)}},
		{"time scale", []string{"3"}, []input.Event{input.Rune('3')}},
		{"zoom", []string{"zoomIn"}, []input.Event{input.Rune('=')}},
		{"binding order", []string{"e", "tab"}, []input.Event{input.Press(input.KeyTab), input.Rune('e')}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clear(held)
			for _, n := range tt.pressed {
				held[n] = true
			}
			is.Update(0.016)
			if got := is.Drain(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestInputSystem_Mouse(t *testing.T) {
	var m engo.Mouse
	vp := NewViewport(640, 480, nil)
	is := newInputSystem(vp,
		func(string) bool { return false },
		func() engo.Mouse { return m },
	)

	is.Update(0.016)
	if got := is.Drain(); len(got) != 1 || got[0] != (input.Resize{Width: 640, Height: 480}) {
		t.Fatalf("Expected initial resize, got %v", got)
	}

	steps := []struct {
		name  string
		mouse engo.Mouse
		want  []input.Event
	}{
		{"press", engo.Mouse{X: 10, Y: 20, Action: engo.Press, Button: engo.MouseButtonLeft},
			[]input.Event{input.MouseDown{Button: input.ButtonLeft, Pos: geom.V(10, 20)}}},
		{"held press repeats nothing", engo.Mouse{X: 10, Y: 20, Action: engo.Press, Button: engo.MouseButtonLeft}, nil},
		{"drag", engo.Mouse{X: 15, Y: 20, Action: engo.Neutral},
			[]input.Event{input.MouseMove{Pos: geom.V(15, 20)}}},
		{"release", engo.Mouse{X: 15, Y: 20, Action: engo.Release, Button: engo.MouseButtonLeft},
			[]input.Event{input.MouseUp{Button: input.ButtonLeft, Pos: geom.V(15, 20)}}},
		{"stray release", engo.Mouse{X: 15, Y: 20, Action: engo.Release, Button: engo.MouseButtonLeft}, nil},
		{"wheel", engo.Mouse{X: 15, Y: 20, ScrollY: -1, Action: engo.Neutral},
			[]input.Event{input.Wheel{Delta: -1, Pos: geom.V(15, 20)}}},
		{"right click", engo.Mouse{X: 15, Y: 20, Action: engo.Press, Button: engo.MouseButtonRight},
			[]input.Event{input.MouseDown{Button: input.ButtonRight, Pos: geom.V(15, 20)}}},
	}
	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			m = s.mouse
			is.Update(0.016)
			if got := is.Drain(); !reflect.DeepEqual(got, s.want) {
				t.Errorf("Expected %v, got %v", s.want, got)
			}
		})
	}
}
