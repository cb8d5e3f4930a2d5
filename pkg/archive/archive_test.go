package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var distribution = map[string]string{
	"apache-cassandra-4.0.1/bin/cassandra":          "#!/bin/sh\n",
	"apache-cassandra-4.0.1/conf/cassandra.yaml":    "cluster_name: Test Cluster\n",
	"apache-cassandra-4.0.1/lib/cassandra.jar":      "jar",
	"apache-cassandra-4.0.1/doc/index.html":         "<html/>",
	"apache-cassandra-4.0.1/javadoc/overview.html":  "<html/>",
	"apache-cassandra-4.0.1/pylib/cqlshlib/doc.txt": "not a doc dir",
}

func writeTarGz(t *testing.T, path string) {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range distribution {
		mode := int64(0644)
		if filepath.Base(filepath.Dir(name)) == "bin" {
			mode = 0755
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     mode,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func writeZip(t *testing.T, path string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range distribution {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestExtract_TarGzSkipsDocs(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "apache-cassandra-4.0.1-bin.tar.gz")
	writeTarGz(t, src)

	dest := filepath.Join(tmpDir, "out")
	require.NoError(t, Extract(context.Background(), src, dest, SkipDirs("doc", "javadoc")))

	root := filepath.Join(dest, "apache-cassandra-4.0.1")
	assert.FileExists(t, filepath.Join(root, "conf", "cassandra.yaml"))
	assert.FileExists(t, filepath.Join(root, "pylib", "cqlshlib", "doc.txt"))
	assert.NoDirExists(t, filepath.Join(root, "doc"))
	assert.NoDirExists(t, filepath.Join(root, "javadoc"))

	info, err := os.Stat(filepath.Join(root, "bin", "cassandra"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0100, "bin/cassandra should stay executable")
}

func TestExtract_Zip(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "apache-cassandra-4.0.1-bin.zip")
	writeZip(t, src)

	dest := filepath.Join(tmpDir, "out")
	require.NoError(t, Extract(context.Background(), src, dest, SkipDirs("doc", "javadoc")))

	assert.FileExists(t, filepath.Join(dest, "apache-cassandra-4.0.1", "lib", "cassandra.jar"))
	assert.NoDirExists(t, filepath.Join(dest, "apache-cassandra-4.0.1", "doc"))
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	err := Extract(context.Background(), "cassandra.rar", t.TempDir(), nil)
	assert.ErrorContains(t, err, "unsupported archive format")
}

func TestSafeJoin_ClampsParentElements(t *testing.T) {
	dest := t.TempDir()

	target, err := safeJoin(dest, "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "etc", "passwd"), target)

	target, err = safeJoin(dest, "a/../../b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "b"), target)
}

func TestSkipDirs(t *testing.T) {
	skip := SkipDirs("doc", "javadoc")
	assert.True(t, skip("apache-cassandra-4.0.1/doc/"))
	assert.True(t, skip("apache-cassandra-4.0.1/javadoc/a/b.html"))
	assert.False(t, skip("apache-cassandra-4.0.1/docs.txt"))
	assert.False(t, skip("apache-cassandra-4.0.1/bin/cassandra"))
}
