package command

import "testing"

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]int32
		wantErr bool
	}{
		{
			name: "single assignment",
			args: []string{"0=1"},
			want: map[string]int32{"0": 1},
		},
		{
			name: "multiple assignments",
			args: []string{"0=1", "1=2", "2=1"},
			want: map[string]int32{"0": 1, "1": 2, "2": 1},
		},
		{
			name:    "missing equals",
			args:    []string{"01"},
			wantErr: true,
		},
		{
			name:    "non-numeric partition",
			args:    []string{"x=1"},
			wantErr: true,
		},
		{
			name:    "non-numeric group",
			args:    []string{"0=x"},
			wantErr: true,
		},
		{
			name: "no args",
			args: nil,
			want: map[string]int32{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAssignments failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %d, want %d", k, got[k], v)
				}
			}
		})
	}
}
