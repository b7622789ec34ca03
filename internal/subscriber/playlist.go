package subscriber

import (
	"fmt"
	"strings"
)

// PlaylistHeader первая строка любого плейлиста.
const PlaylistHeader = "#EXTM3U\n"

// ManifestSource поток каталога, умеющий описать себя строкой плейлиста.
type ManifestSource interface {
	// SelfManifestEntry запись без привязки к устройству, для собственных потоков.
	SelfManifestEntry(header bool) string
	// DeviceManifestEntry запись с URL, привязанным к абоненту и устройству.
	DeviceManifestEntry(subscriberID, credentialHash, deviceID, lbAddress string, header bool) string
}

// DanglingPolicy что делать со ссылкой на поток, которого нет в каталоге.
type DanglingPolicy int

const (
	// DanglingFail прерывает генерацию с ErrDanglingReference.
	DanglingFail DanglingPolicy = iota
	// DanglingSkip пропускает запись и сообщает о ней в Playlist.Skipped.
	DanglingSkip
)

// Playlist результат генерации.
type Playlist struct {
	Content string
	Entries int
	Skipped []string
}

// GeneratePlaylist собирает плейлист для устройства deviceID в порядке хранения связей.
// streams содержит потоки каталога по их id.
func (s *Subscriber) GeneratePlaylist(deviceID, lbAddress string, streams map[string]ManifestSource, policy DanglingPolicy) (Playlist, error) {
	var (
		b        strings.Builder
		playlist Playlist
	)
	b.WriteString(PlaylistHeader)

	for _, us := range s.Streams {
		src, ok := streams[us.StreamRef]
		if !ok || src == nil {
			if policy == DanglingSkip {
				playlist.Skipped = append(playlist.Skipped, us.StreamRef)
				continue
			}
			return Playlist{}, fmt.Errorf("%w: %s", ErrDanglingReference, us.StreamRef)
		}

		if us.Private {
			b.WriteString(src.SelfManifestEntry(false))
		} else {
			b.WriteString(src.DeviceManifestEntry(s.ID, s.Password, deviceID, lbAddress, false))
		}
		playlist.Entries++
	}

	playlist.Content = b.String()
	return playlist, nil
}

// StreamRefs ссылки на все потоки абонента в порядке хранения.
func (s *Subscriber) StreamRefs() []string {
	refs := make([]string, 0, len(s.Streams))
	for _, us := range s.Streams {
		refs = append(refs, us.StreamRef)
	}
	return refs
}
