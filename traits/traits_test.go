package traits

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	o := New("id", 1, 42)

	if !o.Set(Size, Number(1.5)) {
		t.Fatal("Set(Size) failed")
	}
	v, ok := o.Get(Size)
	if !ok || v.Number != 1.5 {
		t.Errorf("Get(Size) = %v, %v; want 1.5, true", v, ok)
	}

	red := Color{255, 0, 0}
	if !o.Set(PrimaryColor, ColorValue(red)) {
		t.Fatal("Set(PrimaryColor) failed")
	}
	if o.Visual.PrimaryColor != red {
		t.Errorf("primary color = %v, want %v", o.Visual.PrimaryColor, red)
	}

	if !o.Set(ParticleCount, Number(41.6)) {
		t.Fatal("Set(ParticleCount) failed")
	}
	if o.Visual.ParticleCount != 42 {
		t.Errorf("particle count = %d, want 42", o.Visual.ParticleCount)
	}
}

func TestSetRejects(t *testing.T) {
	o := New("id", 1, 42)

	tests := []struct {
		name  string
		trait string
		value Value
	}{
		{"unknown trait", "visual.wings", Number(1)},
		{"number into color", PrimaryColor, Number(1)},
		{"color into number", Size, ColorValue(Color{})},
		{"color into count", ParticleCount, ColorValue(Color{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if o.Set(tt.trait, tt.value) {
				t.Errorf("Set(%q) should fail", tt.trait)
			}
		})
	}
}

func TestKnown(t *testing.T) {
	for _, name := range []string{PrimaryColor, Size, Speed, Mass, MutationRate, ParticleCount} {
		if !Known(name) {
			t.Errorf("expected %q to be known", name)
		}
	}
	if Known("behavioral.telepathy") {
		t.Error("unexpected known trait")
	}
}

func TestHistoryIsCopied(t *testing.T) {
	o := New("id", 1, 42)
	o.AppendRecord(MutationRecord{Timestamp: time.Unix(0, 0), TraitName: Size, Next: Number(2)})

	h := o.History()
	h[0].TraitName = "tampered"

	if o.History()[0].TraitName != Size {
		t.Error("history must not be mutable through History()")
	}

	snap := o.Snapshot()
	o.AppendRecord(MutationRecord{TraitName: Speed})
	if snap.HistoryLen() != 1 {
		t.Errorf("snapshot history len = %d, want 1", snap.HistoryLen())
	}
}

func TestOrganismIDDeterministic(t *testing.T) {
	a := OrganismID("00ff")
	b := OrganismID("00ff")
	c := OrganismID("00fe")
	if a != b {
		t.Error("same hash must yield same id")
	}
	if a == c {
		t.Error("different hashes must yield different ids")
	}
}

func TestValueString(t *testing.T) {
	if got := ColorValue(Color{255, 16, 0}).String(); got != "#ff1000" {
		t.Errorf("color string = %q", got)
	}
	if got := Number(0.5).String(); got != "0.5" {
		t.Errorf("number string = %q", got)
	}
}

func TestChannel(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{-10, 0}, {0, 0}, {127.4, 127}, {127.5, 128}, {300, 255},
	}
	for _, tt := range tests {
		if got := Channel(tt.in); got != tt.want {
			t.Errorf("Channel(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPaletteByName(t *testing.T) {
	p, ok := PaletteByName("ocean")
	if !ok || len(p.Colors) == 0 {
		t.Fatal("expected ocean palette")
	}
	if _, ok := PaletteByName("plaid"); ok {
		t.Error("unexpected palette")
	}
}

func TestUpdateFitness(t *testing.T) {
	tests := []struct {
		name string
		b    Behavioral
		want float64
	}{
		{"all zero", Behavioral{}, 0},
		{"all at ceiling", Behavioral{Speed: SpeedCeiling, Aggression: 1, Sociability: 1, Curiosity: 1}, 1},
		{"speed scaled", Behavioral{Speed: 2.5, Aggression: 0.5, Sociability: 0, Curiosity: 1}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New("id", 1, 1)
			o.Behavioral = tt.b
			o.UpdateFitness()
			if o.Evolutionary.Fitness != tt.want {
				t.Errorf("fitness = %v, want %v", o.Evolutionary.Fitness, tt.want)
			}
		})
	}
}
