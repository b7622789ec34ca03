package subscriber

import "time"

// MaxVideoDurationMsec верхняя граница позиции просмотра, сутки в миллисекундах.
const MaxVideoDurationMsec = 24 * 60 * 60 * 1000

// RemovalMode определяет, какие связи снимает RemoveOfficialStream.
type RemovalMode int

const (
	// RemoveAnyMatch снимает все связи с потоком независимо от Private.
	RemoveAnyMatch RemovalMode = iota
	// RemoveOfficialOnly снимает только связи с Private=false.
	RemoveOfficialOnly
)

// UserStream связь абонента с потоком каталога и пользовательское состояние просмотра.
// Private=true означает собственный поток абонента, false означает подписку на официальный поток.
type UserStream struct {
	StreamRef        string    `bson:"sid" json:"sid" validate:"required"`
	Favorite         bool      `bson:"favorite" json:"favorite"`
	Private          bool      `bson:"private" json:"private"`
	Recent           time.Time `bson:"recent" json:"recent"`
	InterruptionTime int       `bson:"interruption_time" json:"interruption_time" validate:"min=0,max=86400000"`
}

func newUserStream(ref string, private bool) UserStream {
	return UserStream{
		StreamRef: ref,
		Private:   private,
		Recent:    time.Unix(0, 0).UTC(),
	}
}

// RecentUTCMsec время последнего просмотра в миллисекундах от эпохи.
func (us UserStream) RecentUTCMsec() int64 {
	return us.Recent.UnixMilli()
}

// AllStreams возвращает копию всех связей в порядке добавления.
func (s *Subscriber) AllStreams() []UserStream {
	out := make([]UserStream, len(s.Streams))
	copy(out, s.Streams)
	return out
}

// OfficialStreams связи с официальными потоками.
func (s *Subscriber) OfficialStreams() []UserStream {
	return s.filterStreams(func(us UserStream) bool { return !us.Private })
}

// OwnStreams связи с собственными потоками абонента.
func (s *Subscriber) OwnStreams() []UserStream {
	return s.filterStreams(func(us UserStream) bool { return us.Private })
}

// HasStream проверяет, есть ли связь с потоком ref.
func (s *Subscriber) HasStream(ref string) bool {
	return s.streamIndex(ref) >= 0
}

// HasOwnStream проверяет, есть ли собственный поток ref.
func (s *Subscriber) HasOwnStream(ref string) bool {
	for _, us := range s.Streams {
		if us.StreamRef == ref && us.Private {
			return true
		}
	}
	return false
}

// AddOfficialStream подписывает абонента на официальный поток.
// Повторный вызов ничего не меняет; возвращает true, если связь добавлена.
func (s *Subscriber) AddOfficialStream(ref string) (bool, error) {
	return s.addStream(ref, false)
}

// AddOwnStream добавляет собственный поток абонента. Семантика как у AddOfficialStream.
func (s *Subscriber) AddOwnStream(ref string) (bool, error) {
	return s.addStream(ref, true)
}

func (s *Subscriber) addStream(ref string, private bool) (bool, error) {
	if s.IsDeleted() {
		return false, ErrSubscriberDeleted
	}
	if s.HasStream(ref) {
		return false, nil
	}
	s.Streams = append(s.Streams, newUserStream(ref, private))
	return true, nil
}

// RemoveOfficialStream снимает связи с потоком ref согласно mode.
func (s *Subscriber) RemoveOfficialStream(ref string, mode RemovalMode) error {
	removed := s.removeStreams(func(us UserStream) bool {
		if us.StreamRef != ref {
			return false
		}
		return mode == RemoveAnyMatch || !us.Private
	})
	if len(removed) == 0 {
		return ErrStreamNotFound
	}
	return nil
}

// RemoveOwnStream снимает связь с собственным потоком ref.
// Удаление самого потока из каталога остаётся на вызывающей стороне.
func (s *Subscriber) RemoveOwnStream(ref string) error {
	removed := s.removeStreams(func(us UserStream) bool {
		return us.StreamRef == ref && us.Private
	})
	if len(removed) == 0 {
		return ErrStreamNotFound
	}
	return nil
}

// RemoveAllOwnStreams снимает все собственные потоки и возвращает их ссылки,
// чтобы вызывающий удалил потоки из каталога.
func (s *Subscriber) RemoveAllOwnStreams() []string {
	removed := s.removeStreams(func(us UserStream) bool { return us.Private })
	refs := make([]string, 0, len(removed))
	for _, us := range removed {
		refs = append(refs, us.StreamRef)
	}
	return refs
}

// PullStream снимает любую связь с потоком ref. Используется, когда поток удалён из каталога.
func (s *Subscriber) PullStream(ref string) bool {
	return len(s.removeStreams(func(us UserStream) bool { return us.StreamRef == ref })) > 0
}

// SetFavorite отмечает поток как избранный.
func (s *Subscriber) SetFavorite(ref string, favorite bool) error {
	return s.updateStream(ref, func(us *UserStream) error {
		us.Favorite = favorite
		return nil
	})
}

// SetRecent запоминает время последнего просмотра.
func (s *Subscriber) SetRecent(ref string, at time.Time) error {
	return s.updateStream(ref, func(us *UserStream) error {
		us.Recent = at.UTC()
		return nil
	})
}

// SetInterruptionTime запоминает позицию, с которой продолжить просмотр.
func (s *Subscriber) SetInterruptionTime(ref string, msec int) error {
	if msec < 0 || msec > MaxVideoDurationMsec {
		return ErrInvalidInterruptionTime
	}
	return s.updateStream(ref, func(us *UserStream) error {
		us.InterruptionTime = msec
		return nil
	})
}

func (s *Subscriber) updateStream(ref string, fn func(us *UserStream) error) error {
	i := s.streamIndex(ref)
	if i < 0 {
		return ErrStreamNotFound
	}
	return fn(&s.Streams[i])
}

func (s *Subscriber) streamIndex(ref string) int {
	for i, us := range s.Streams {
		if us.StreamRef == ref {
			return i
		}
	}
	return -1
}

func (s *Subscriber) filterStreams(keep func(UserStream) bool) []UserStream {
	out := make([]UserStream, 0, len(s.Streams))
	for _, us := range s.Streams {
		if keep(us) {
			out = append(out, us)
		}
	}
	return out
}

// removeStreams удаляет подходящие связи с сохранением порядка остальных.
func (s *Subscriber) removeStreams(match func(UserStream) bool) []UserStream {
	var removed []UserStream
	kept := s.Streams[:0]
	for _, us := range s.Streams {
		if match(us) {
			removed = append(removed, us)
			continue
		}
		kept = append(kept, us)
	}
	s.Streams = kept
	return removed
}
