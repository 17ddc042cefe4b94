package strings

import (
	"testing"
	"time"
)

func TestValueToString(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"int64", int64(-42), "-42"},
		{"uint8", uint8(7), "7"},
		{"float", 1.5, "1.5"},
		{"bool", true, "true"},
		{"bytes", []byte("raw"), "raw"},
		{"time", time.Date(2024, 3, 1, 10, 30, 0, 250000000, time.UTC), "2024-03-01 10:30:00.25"},
		{"slice", []int{1, 2}, "[1 2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValueToString(tt.value); got != tt.want {
				t.Errorf("ValueToString(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestRow(t *testing.T) {
	got := Row([]interface{}{1, nil, "x"})
	if len(got) != 3 || got[0] != "1" || got[1] != "" || got[2] != "x" {
		t.Errorf("unexpected row %q", got)
	}
}

func TestFolderTableNaming(t *testing.T) {
	tests := []struct {
		folder string
		table  string
	}{
		{"orders", "orders"},
		{"sales__orders", "sales.orders"},
		{"db__sales__orders", "db.sales.orders"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := FolderToTable(tt.folder); got != tt.table {
			t.Errorf("FolderToTable(%q) = %q, want %q", tt.folder, got, tt.table)
		}
		if got := TableToFolder(tt.table); got != tt.folder {
			t.Errorf("TableToFolder(%q) = %q, want %q", tt.table, got, tt.folder)
		}
	}
}
