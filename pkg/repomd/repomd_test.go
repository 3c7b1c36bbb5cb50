package repomd

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/repodef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRepoMD = `<?xml version="1.0" encoding="UTF-8"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo" xmlns:rpm="http://linux.duke.edu/metadata/rpm">
  <revision>1718000000</revision>
  <data type="primary">
    <checksum type="sha256">
      aaa111
    </checksum>
    <open-checksum type="sha256">bbb222</open-checksum>
    <location href="repodata/aaa111-primary.xml.gz"/>
    <timestamp>1718000000</timestamp>
    <size>1234</size>
    <open-size>5678</open-size>
  </data>
  <data type="primary_db">
    <checksum type="sha512">ccc333</checksum>
    <location xml:base="https://cdn.example.org/fedora/" href="repodata/ccc333-primary.sqlite.xz"/>
    <database_version>10</database_version>
  </data>
  <data type="filelists">
    <checksum type="sha256">ddd444</checksum>
    <location href="repodata/ddd444-filelists.xml.zst"/>
  </data>
</repomd>`

func TestParse(t *testing.T) {
	md, err := Parse([]byte(sampleRepoMD))
	require.NoError(t, err)

	assert.Equal(t, "1718000000", md.Revision)
	require.Len(t, md.Data, 3)

	primary := md.Find(TypePrimary)
	require.NotNil(t, primary)
	assert.Equal(t, "aaa111", primary.Checksum.Value)
	assert.Equal(t, "sha256", primary.Checksum.Type)
	assert.Equal(t, "bbb222", primary.OpenChecksum.Value)
	assert.Equal(t, int64(1234), primary.Size)
	assert.Equal(t, int64(5678), primary.OpenSize)
	assert.False(t, primary.IsDatabase())

	db := md.Find(TypePrimaryDB, TypePrimary)
	require.NotNil(t, db)
	assert.Equal(t, TypePrimaryDB, db.Type)
	assert.Equal(t, 10, db.DatabaseVersion)
	assert.True(t, db.IsDatabase())

	assert.Nil(t, md.Find(TypeFilelistsDB))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("<repomd><data>"))
	assert.ErrorIs(t, err, errors.ErrMetadataParse)
}

func TestDataURL(t *testing.T) {
	md, err := Parse([]byte(sampleRepoMD))
	require.NoError(t, err)
	base, err := url.Parse("https://mirror.example.org/fedora/releases/40/Everything/x86_64/os/")
	require.NoError(t, err)

	u, err := md.Find(TypePrimary).URL(base)
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example.org/fedora/releases/40/Everything/x86_64/os/repodata/aaa111-primary.xml.gz", u.String())

	u, err = md.Find(TypePrimaryDB).URL(base)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/fedora/repodata/ccc333-primary.sqlite.xz", u.String())
}

type fakeGetter map[string]string

func (f fakeGetter) Get(_ context.Context, u *url.URL) ([]byte, error) {
	body, ok := f[u.String()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", u, errors.ErrDownloadFailed)
	}
	return []byte(body), nil
}

func TestResolve_BaseURLFallsThroughDeadMirror(t *testing.T) {
	getter := fakeGetter{
		"https://good.example.org/os/repodata/repomd.xml": sampleRepoMD,
	}
	repo := &repodef.Repo{
		ID:       "fedora",
		BaseURLs: []string{"https://dead.example.org/os", "https://good.example.org/os/"},
	}

	remote, err := NewResolver(getter, nil).Resolve(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, "https://good.example.org/os/", remote.BaseURL.String())
	assert.Equal(t, "1718000000", remote.RepoMD.Revision)
}

func TestResolve_Metalink(t *testing.T) {
	metalinkDoc := `<?xml version="1.0" encoding="utf-8"?>
<metalink version="3.0" xmlns="http://www.metalinker.org/">
 <files>
  <file name="repomd.xml">
   <resources maxconnections="1">
    <url protocol="rsync" type="rsync" preference="100">rsync://rsync.example.org/fedora/repodata/repomd.xml</url>
    <url protocol="https" type="https" preference="90">https://low.example.org/fedora/repodata/repomd.xml</url>
    <url protocol="https" type="https" preference="99">https://high.example.org/fedora/repodata/repomd.xml</url>
   </resources>
  </file>
 </files>
</metalink>`
	getter := fakeGetter{
		"https://mirrors.example.org/metalink?repo=fedora-40&arch=x86_64": metalinkDoc,
		"https://high.example.org/fedora/repodata/repomd.xml":             sampleRepoMD,
	}
	repo := &repodef.Repo{ID: "fedora", Metalink: "https://mirrors.example.org/metalink?repo=fedora-40&arch=x86_64"}

	remote, err := NewResolver(getter, nil).Resolve(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, "https://high.example.org/fedora/", remote.BaseURL.String())
}

func TestResolve_MirrorList(t *testing.T) {
	getter := fakeGetter{
		"https://mirrors.example.org/list": "# comment\n\nftp://old.example.org/repo/\nhttps://m1.example.org/repo\n",
		"https://m1.example.org/repo/repodata/repomd.xml": sampleRepoMD,
	}
	repo := &repodef.Repo{ID: "mageia", MirrorList: "https://mirrors.example.org/list"}

	remote, err := NewResolver(getter, nil).Resolve(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, "https://m1.example.org/repo/", remote.BaseURL.String())
}

func TestResolve_Failures(t *testing.T) {
	tests := []struct {
		name    string
		repo    *repodef.Repo
		wantErr error
	}{
		{
			name:    "no usable location",
			repo:    &repodef.Repo{ID: "x", BaseURLs: []string{"rsync://only.example.org/"}},
			wantErr: errors.ErrNoBaseURL,
		},
		{
			name:    "all mirrors dead",
			repo:    &repodef.Repo{ID: "x", BaseURLs: []string{"https://a.example.org/", "https://b.example.org/"}},
			wantErr: errors.ErrDownloadFailed,
		},
		{
			name:    "metalink unreachable",
			repo:    &repodef.Repo{ID: "x", Metalink: "https://mirrors.example.org/metalink"},
			wantErr: errors.ErrDownloadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(fakeGetter{}, nil).Resolve(context.Background(), tt.repo)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := &repodef.Repo{ID: "x", BaseURLs: []string{"https://a.example.org/", "https://b.example.org/"}}
	_, err := NewResolver(fakeGetter{}, nil).Resolve(ctx, repo)
	assert.ErrorIs(t, err, context.Canceled)
}
