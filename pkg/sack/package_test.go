package sack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackage_EVR(t *testing.T) {
	p := Package{Name: "nginx", Arch: "x86_64", Epoch: 1, Version: "1.24.0", Release: "4.fc40"}
	assert.Equal(t, "1:1.24.0-4.fc40", p.EVR())
	assert.Equal(t, "nginx-1:1.24.0-4.fc40.x86_64", p.NEVRA())

	p.Epoch = 0
	assert.Equal(t, "1.24.0-4.fc40", p.EVR())
}

func TestPackage_RemoteLocation(t *testing.T) {
	https := []string{"https"}
	tests := []struct {
		name    string
		pkg     Package
		schemes []string
		want    string
	}{
		{
			name:    "relative to repository",
			pkg:     Package{LocationHref: "Packages/b/bash.rpm", RepoBaseURL: "https://example.com/os"},
			schemes: https,
			want:    "https://example.com/os/Packages/b/bash.rpm",
		},
		{
			name:    "location base wins",
			pkg:     Package{LocationHref: "b/bash.rpm", LocationBase: "https://cdn.example.com/pool/", RepoBaseURL: "https://example.com/os/"},
			schemes: https,
			want:    "https://cdn.example.com/pool/b/bash.rpm",
		},
		{
			name:    "absolute href",
			pkg:     Package{LocationHref: "https://other.example.com/bash.rpm", RepoBaseURL: "https://example.com/os/"},
			schemes: https,
			want:    "https://other.example.com/bash.rpm",
		},
		{
			name:    "scheme not allowed",
			pkg:     Package{LocationHref: "Packages/bash.rpm", RepoBaseURL: "http://example.com/os/"},
			schemes: https,
			want:    "",
		},
		{
			name:    "scheme allowed",
			pkg:     Package{LocationHref: "Packages/bash.rpm", RepoBaseURL: "http://example.com/os/"},
			schemes: []string{"https", "http"},
			want:    "http://example.com/os/Packages/bash.rpm",
		},
		{
			name:    "no base",
			pkg:     Package{LocationHref: "Packages/bash.rpm"},
			schemes: https,
			want:    "",
		},
		{
			name:    "no href",
			pkg:     Package{RepoBaseURL: "https://example.com/os/"},
			schemes: https,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pkg.RemoteLocation(tt.schemes))
		})
	}
}

func TestLatest(t *testing.T) {
	assert.Nil(t, Latest(nil))

	pkgs := []Package{
		{Key: 1, Version: "1.10", Release: "1"},
		{Key: 2, Version: "1.9", Release: "5"},
		{Key: 3, Epoch: 1, Version: "0.1", Release: "1"},
		{Key: 4, Epoch: 1, Version: "0.1", Release: "1"},
	}
	assert.Equal(t, int64(3), Latest(pkgs).Key)
	assert.Equal(t, int64(1), Latest(pkgs[:2]).Key)

	assert.Positive(t, CompareEVR(&pkgs[0], &pkgs[1]))
	assert.Zero(t, CompareEVR(&pkgs[2], &pkgs[3]))
}

func TestRelation_String(t *testing.T) {
	tests := []struct {
		rel  Relation
		want string
	}{
		{Relation{Name: "webserver"}, "webserver"},
		{Relation{Name: "bash", Flags: "EQ", Epoch: "0", Version: "5.2.26", Release: "3.fc40"}, "bash = 5.2.26-3.fc40"},
		{Relation{Name: "nginx", Flags: "GE", Epoch: "1", Version: "1.24.0"}, "nginx >= 1:1.24.0"},
		{Relation{Name: "python3-tools", Flags: "LT", Version: "3.0"}, "python3-tools < 3.0"},
		{Relation{Name: "odd", Flags: "EQ"}, "odd"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.rel.String())
	}
}

func TestParseRelationKind(t *testing.T) {
	k, ok := ParseRelationKind("supplements")
	assert.True(t, ok)
	assert.Equal(t, Supplements, k)

	_, ok = ParseRelationKind("files")
	assert.False(t, ok)
}
