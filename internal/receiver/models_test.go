package receiver

import "testing"

func TestLookupModel(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
	}{
		{"exact", "MP-60", true},
		{"lower case", "mp-60", true},
		{"padded", "  MP-60 ", true},
		{"unknown", "MP-50", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := LookupModel(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("LookupModel(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				if !m.IsZero() {
					t.Errorf("LookupModel(%q) = %+v, want zero model", tt.input, m)
				}
				return
			}
			if m.Name != "MP-60" || m.Manufacturer != ManufacturerLyngdorf || m.Port != ControlPort {
				t.Errorf("LookupModel(%q) = %+v", tt.input, m)
			}
		})
	}
}

func TestLookupModel_ReturnsCopy(t *testing.T) {
	m, _ := LookupModel("MP-60")
	m.Zones[0].Name = "changed"
	m.Zones[0].Features[0] = "changed"

	again, _ := LookupModel("MP-60")
	if again.Zones[0].Name != ZoneMain || again.Zones[0].Features[0] != FeatureVolume {
		t.Error("mutating a looked-up model changed the registry")
	}
}

func TestModel_Zones(t *testing.T) {
	m, _ := LookupModel("MP-60")

	main, ok := m.Zone(ZoneMain)
	if !ok || main.Prefix != "" {
		t.Errorf("Zone(%q) = %+v, %v", ZoneMain, main, ok)
	}
	zoneB, ok := m.Zone(ZoneB)
	if !ok || zoneB.Prefix != "Z" {
		t.Errorf("Zone(%q) = %+v, %v", ZoneB, zoneB, ok)
	}
	if _, ok := m.Zone("Zone C"); ok {
		t.Error("Zone(\"Zone C\") should not exist")
	}
	if m.VolumeMin != -99.9 || m.VolumeMax != 20 {
		t.Errorf("volume range = %v..%v", m.VolumeMin, m.VolumeMax)
	}
}

func TestSupportedManufacturers(t *testing.T) {
	got := SupportedManufacturers()
	if len(got) != 1 || got[0] != "Lyngdorf" {
		t.Errorf("SupportedManufacturers() = %v, want [Lyngdorf]", got)
	}
}

func TestModels(t *testing.T) {
	models := Models()
	if len(models) != 1 || models[0].Name != "MP-60" {
		t.Errorf("Models() = %+v", models)
	}
}
