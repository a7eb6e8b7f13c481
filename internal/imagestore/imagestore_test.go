package imagestore

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizeShrinksWideImages(t *testing.T) {
	out, err := Normalize(pngBytes(t, 1600, 400))
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestNormalizeKeepsSmallImages(t *testing.T) {
	out, err := Normalize(pngBytes(t, 120, 90))
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize([]byte("not an image"))
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = Normalize(nil)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestLocalStorePut(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	key := Key("product", 3)
	assert.True(t, strings.HasPrefix(key, "product/3/"))

	path, err := s.Put(context.Background(), key, []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/"+key, path)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = s.Put(context.Background(), "../escape.jpg", []byte("x"))
	assert.Error(t, err)
}
