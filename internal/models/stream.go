// Package models содержит записи внешних сущностей, на которые ссылается абонент:
// потоки каталога и события об их удалении.
package models

import (
	"fmt"
	"net/url"
	"path"
)

// Output точка выдачи потока.
type Output struct {
	ID  int    `bson:"id" json:"id"`
	URI string `bson:"uri" json:"uri" validate:"required"`
}

// Stream запись каталога потоков. Официальные потоки общие для всех абонентов,
// собственные принадлежат одному абоненту (OwnerID) и удаляются вместе со связью.
type Stream struct {
	ID      string `bson:"_id" json:"id" validate:"required"`
	Name    string `bson:"name" json:"name" validate:"required"`
	TvgID   string `bson:"tvg_id" json:"tvg_id"`
	TvgName string `bson:"tvg_name" json:"tvg_name"`
	TvgLogo string `bson:"tvg_logo" json:"tvg_logo"`
	Group   string `bson:"group" json:"group"`
	OwnerID string `bson:"owner_id,omitempty" json:"owner_id,omitempty"`
	Output  Output `bson:"output" json:"output"`
}

const extinfFormat = "#EXTINF:-1 tvg-id=\"%s\" tvg-name=\"%s\" tvg-logo=\"%s\" group-title=\"%s\",%s\n%s\n"

// SelfManifestEntry запись плейлиста с исходным URL потока.
func (s *Stream) SelfManifestEntry(header bool) string {
	return s.entry(header, s.Output.URI)
}

// DeviceManifestEntry запись плейлиста с URL балансировщика, по которому
// при воспроизведении проверяются абонент, хеш пароля и устройство.
// Сегменты пути экранируются: bcrypt-хеш содержит '/'.
func (s *Stream) DeviceManifestEntry(subscriberID, credentialHash, deviceID, lbAddress string, header bool) string {
	fileName := "master.m3u8"
	if u, err := url.Parse(s.Output.URI); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			fileName = base
		}
	}
	link := fmt.Sprintf("http://%s/%s/%s/%s/%s/%d/%s",
		lbAddress,
		url.PathEscape(subscriberID),
		url.PathEscape(credentialHash),
		url.PathEscape(deviceID),
		url.PathEscape(s.ID),
		s.Output.ID,
		url.PathEscape(fileName),
	)
	return s.entry(header, link)
}

func (s *Stream) entry(header bool, link string) string {
	result := ""
	if header {
		result = "#EXTM3U\n"
	}
	return result + fmt.Sprintf(extinfFormat, s.TvgID, s.TvgName, s.TvgLogo, s.Group, s.Name, link)
}
