package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"mediaCompressor/models"
	"mediaCompressor/worker/codec"
	"mediaCompressor/worker/media"
)

type span struct {
	start, end int
	important  bool
}

// cover splits [0, total) into alternating background and important spans.
// Overlapping regions are clipped to the previous span's end.
func cover(regions []models.Region, total int) []span {
	sorted := append([]models.Region(nil), regions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var spans []span
	cursor := 0
	for _, r := range sorted {
		start, end := max(r.Start, cursor), min(r.End, total)
		if end <= start {
			continue
		}
		if start > cursor {
			spans = append(spans, span{start: cursor, end: start})
		}
		spans = append(spans, span{start: start, end: end, important: true})
		cursor = end
	}
	if cursor < total {
		spans = append(spans, span{start: cursor, end: total})
	}
	return spans
}

// compressAudio encodes each span as its own Ogg stream and chains them, which keeps
// the output a single playable file.
func (e *Engine) compressAudio(ctx context.Context, j *job) ([]byte, []models.Partition, error) {
	pcm := j.asset.PCM
	if pcm == nil || pcm.Format == nil {
		return nil, nil, errors.New("audio asset has no pcm")
	}
	total := j.asset.Samples()
	kbps := codec.EffectiveBitrate(j.c, j.settings.Bitrate)
	target := codec.Target{Quality: j.settings.Quality, BitrateKbps: kbps}

	spans := cover(j.regions, total)
	importantSpans := 0
	for _, s := range spans {
		if s.important {
			importantSpans++
		}
	}

	if importantSpans == 0 {
		j.progress(ProgressEncoding)
		out, err := j.c.Encode(ctx, j.asset, target, codec.Options{})
		if err != nil {
			return nil, nil, fmt.Errorf("encode audio with %s: %w", j.c.Name(), err)
		}
		j.progress(ProgressEncoded)
		j.progress(ProgressAssembled)
		return out, []models.Partition{{
			Role:    models.PartitionUniform,
			Codec:   j.c.Name(),
			Bitrate: kbps,
			Bytes:   len(out),
			Area:    int64(total),
		}}, nil
	}

	impKbps, bgKbps := e.policy.Bitrates(kbps)
	important := models.Partition{Role: models.PartitionImportant, Codec: j.c.Name(), Bitrate: codec.EffectiveBitrate(j.c, impKbps)}
	background := models.Partition{Role: models.PartitionBackground, Codec: j.c.Name(), Bitrate: codec.EffectiveBitrate(j.c, bgKbps)}

	j.progress(ProgressEncoding)

	var out bytes.Buffer
	for i, s := range spans {
		segment := &media.Asset{
			Kind:     models.KindAudio,
			PCM:      media.Slice(pcm, s.start, s.end),
			BitDepth: j.asset.BitDepth,
		}
		part := &background
		if s.important {
			part = &important
		}
		t := target
		t.BitrateKbps = part.Bitrate

		data, err := j.c.Encode(ctx, segment, t, codec.Options{})
		if err != nil {
			return nil, nil, fmt.Errorf("encode span %d [%d,%d) with %s: %w", i, s.start, s.end, j.c.Name(), err)
		}
		out.Write(data)
		part.Bytes += len(data)
		part.Area += int64(s.end - s.start)
		j.progress(encodeProgress(i+1, len(spans)))
	}
	j.progress(ProgressEncoded)
	j.progress(ProgressAssembled)
	j.encoded = importantSpans

	partitions := []models.Partition{important}
	if background.Area > 0 {
		partitions = append(partitions, background)
	}
	return out.Bytes(), partitions, nil
}
