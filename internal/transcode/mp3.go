package transcode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	apperrors "github.com/dygy/strudel-samples/internal/errors"
)

// go-mp3 always yields interleaved 16-bit little-endian stereo
const (
	mp3Channels = 2
	mp3BitDepth = 16
	chunkFrames = 4096
)

// MP3Decoder converts MP3 files without external tools
type MP3Decoder struct{}

func (MP3Decoder) Name() string {
	return "mp3"
}

func (MP3Decoder) CanConvert(ext string) bool {
	return ext == ".mp3"
}

// Convert decodes src and writes a 16-bit PCM WAV to dst
func (MP3Decoder) Convert(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	decoder, err := mp3.NewDecoder(in)
	if err != nil {
		return fmt.Errorf("%w: decode mp3: %v", apperrors.ErrCorruptedFile, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if err := encodeWAV(ctx, decoder, decoder.SampleRate(), out); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func encodeWAV(ctx context.Context, pcm io.Reader, sampleRate int, out io.WriteSeeker) error {
	enc := wav.NewEncoder(out, sampleRate, mp3BitDepth, mp3Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: mp3Channels, SampleRate: sampleRate},
		SourceBitDepth: mp3BitDepth,
	}

	raw := make([]byte, chunkFrames*mp3Channels*2)
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(pcm, raw)
		n -= n % 2
		if n > 0 {
			buf.Data = buf.Data[:0]
			for i := 0; i < n; i += 2 {
				buf.Data = append(buf.Data, int(int16(binary.LittleEndian.Uint16(raw[i:]))))
			}
			if werr := enc.Write(buf); werr != nil {
				return fmt.Errorf("write wav: %w", werr)
			}
			total += n
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: decode mp3: %v", apperrors.ErrCorruptedFile, err)
		}
	}

	if total == 0 {
		return fmt.Errorf("%w: mp3 produced no audio", apperrors.ErrCorruptedFile)
	}
	return enc.Close()
}
