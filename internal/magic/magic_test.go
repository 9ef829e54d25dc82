package magic

import (
	"testing"

	"github.com/spf13/afero"
)

func TestIsELF(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string][]byte{
		"/libfoo.so": []byte("\x7fELF\x01\x01\x01"),
		"/foo.apk":   []byte("PK\x03\x04rest"),
		"/foo.dylib": {0xcf, 0xfa, 0xed, 0xfe, 0x0c},
		"/foo.exe":   []byte("MZ\x90\x00"),
		"/foo.txt":   []byte("hello"),
		"/tiny":      []byte("\x7f"),
	}
	for name, data := range files {
		if err := afero.WriteFile(fs, name, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		path    string
		want    bool
		wantErr bool
	}{
		{"/libfoo.so", true, false},
		{"/foo.apk", false, true},
		{"/foo.dylib", false, true},
		{"/foo.exe", false, true},
		{"/foo.txt", false, true},
		{"/tiny", false, true},
		{"/missing.so", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := IsELF(fs, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("IsELF() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("IsELF() = %v, want %v", got, tt.want)
			}
		})
	}
}
