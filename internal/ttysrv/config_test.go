package ttysrv

import "testing"

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  Config{Argv: []string{"cat"}},
		},
		{
			name:    "empty argv",
			cfg:     Config{Argv: nil},
			wantErr: true,
		},
		{
			name:    "negative max clients",
			cfg:     Config{Argv: []string{"cat"}, MaxClients: -1},
			wantErr: true,
		},
		{
			name: "zero max clients means unlimited, not invalid",
			cfg:  Config{Argv: []string{"cat"}, MaxClients: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
