package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	apperrors "github.com/dygy/strudel-samples/internal/errors"
)

type fakeConverter struct {
	name  string
	exts  map[string]bool
	err   error
	calls int
}

func (f *fakeConverter) Name() string               { return f.name }
func (f *fakeConverter) CanConvert(ext string) bool { return f.exts[ext] }
func (f *fakeConverter) Convert(_ context.Context, _, dst string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dst, []byte("RIFF"), 0644)
}

func TestChainFallsThroughOnMissingTool(t *testing.T) {
	missing := &fakeConverter{
		name: "ffmpeg",
		exts: map[string]bool{".mp3": true},
		err:  apperrors.NewProcessError("ffmpeg", "convert", 0, "", apperrors.ErrToolNotInstalled),
	}
	builtin := &fakeConverter{name: "mp3", exts: map[string]bool{".mp3": true}}

	dst := filepath.Join(t.TempDir(), "out.wav")
	if err := (Chain{missing, builtin}).Convert(context.Background(), "in.mp3", dst); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if missing.calls != 1 || builtin.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", missing.calls, builtin.calls)
	}
}

func TestChainStopsOnRealFailure(t *testing.T) {
	broken := &fakeConverter{
		name: "ffmpeg",
		exts: map[string]bool{".mp3": true},
		err:  apperrors.NewProcessError("ffmpeg", "convert", 1, "Invalid data", errors.New("exit status 1")),
	}
	builtin := &fakeConverter{name: "mp3", exts: map[string]bool{".mp3": true}}

	err := (Chain{broken, builtin}).Convert(context.Background(), "in.mp3", "out.wav")
	var pe *apperrors.ProcessError
	if !errors.As(err, &pe) || pe.ExitCode != 1 {
		t.Errorf("Convert() error = %v, want ffmpeg ProcessError", err)
	}
	if builtin.calls != 0 {
		t.Error("fallback ran after a real conversion failure")
	}
}

func TestChainWithoutConverter(t *testing.T) {
	chain := Chain{MP3Decoder{}}
	if chain.CanConvert(".ogg") {
		t.Error("mp3 decoder should not accept ogg")
	}
	err := chain.Convert(context.Background(), "in.ogg", "out.wav")
	if !errors.Is(err, apperrors.ErrToolNotInstalled) {
		t.Errorf("Convert() error = %v, want ErrToolNotInstalled", err)
	}
}

func TestFFmpegCanConvert(t *testing.T) {
	f := NewFFmpeg("ffmpeg", nil)
	for _, ext := range []string{".mp3", ".ogg", ".flac", ".m4a"} {
		if !f.CanConvert(ext) {
			t.Errorf("CanConvert(%s) = false", ext)
		}
	}
	if f.CanConvert(".wav") {
		t.Error("native files need no conversion")
	}
}

func TestEncodeWAV(t *testing.T) {
	var pcm bytes.Buffer
	for i := 0; i < 1000; i++ {
		binary.Write(&pcm, binary.LittleEndian, int16(i*10))
		binary.Write(&pcm, binary.LittleEndian, int16(-i*10))
	}

	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := encodeWAV(context.Background(), &pcm, 44100, f); err != nil {
		t.Fatalf("encodeWAV() error = %v", err)
	}
	f.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		t.Fatal("output is not a valid WAV file")
	}
	if dec.SampleRate != 44100 || dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Errorf("format = %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
}

func TestEncodeWAVRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	err = encodeWAV(context.Background(), bytes.NewReader(nil), 44100, f)
	if !errors.Is(err, apperrors.ErrCorruptedFile) {
		t.Errorf("encodeWAV() error = %v, want ErrCorruptedFile", err)
	}
}

func TestMP3DecoderRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.mp3")
	if err := os.WriteFile(src, []byte("<html>not found</html>"), 0644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "bad.wav")
	if err := (MP3Decoder{}).Convert(context.Background(), src, dst); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("failed conversion left an output file")
	}
}
