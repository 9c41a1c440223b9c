package serve

import (
	"github.com/ValentinKolb/arangovst/rpc/server"
	"testing"
)

func TestParseCollections(t *testing.T) {
	testCases := []struct {
		name    string
		value   string
		want    map[string]int
		wantErr bool
	}{
		{name: "Empty", value: "", want: map[string]int{}},
		{name: "Default type", value: "users", want: map[string]int{"users": server.CollectionTypeDocument}},
		{
			name:  "Mixed",
			value: "users=document, knows=edge",
			want:  map[string]int{"users": server.CollectionTypeDocument, "knows": server.CollectionTypeEdge},
		},
		{name: "Invalid type", value: "users=graph", wantErr: true},
		{name: "Missing name", value: "=edge", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseCollections(tc.value)
			if tc.wantErr {
				if err == nil {
					t.Errorf("Expected an error for %q", tc.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("Expected %d collections, got %d", len(tc.want), len(got))
			}
			for name, colType := range tc.want {
				if got[name] != colType {
					t.Errorf("Expected %s to have type %d, got %d", name, colType, got[name])
				}
			}
		})
	}
}
