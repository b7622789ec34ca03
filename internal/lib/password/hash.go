// Package password реализует стратегии одностороннего хеширования паролей абонентов.
//
// MD5Hasher сохраняет совместимость с уже выданными 32-символьными хешами,
// BcryptHasher используется для новых учётных записей, CompatHasher объединяет оба:
// новые пароли хеширует bcrypt, а при проверке понимает и старый формат.
package password

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// LegacyHashLength длина хеша в старом формате (hex md5).
const LegacyHashLength = 32

// Названия стратегий в конфиге.
const (
	KindMD5    = "md5"
	KindBcrypt = "bcrypt"
	KindCompat = "compat"
)

// ErrUnknownHasher возвращается для неизвестного названия стратегии.
var ErrUnknownHasher = errors.New("unknown password hasher")

// Hasher превращает пароль в хеш и проверяет пароль по сохранённому хешу.
type Hasher interface {
	// Hash возвращает хеш пароля.
	Hash(password string) (string, error)
	// Verify возвращает true, если пароль соответствует хешу.
	Verify(hash, password string) bool
}

// New возвращает стратегию по её названию из конфига.
func New(kind string) (Hasher, error) {
	switch kind {
	case KindMD5:
		return MD5Hasher{}, nil
	case KindBcrypt:
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	case KindCompat, "":
		return CompatHasher{Bcrypt: BcryptHasher{Cost: bcrypt.DefaultCost}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHasher, kind)
	}
}

// MD5Hasher быстрый несолёный дайджест, совместимый со старыми записями.
type MD5Hasher struct{}

// Hash возвращает 32 символа lowercase hex.
func (MD5Hasher) Hash(password string) (string, error) {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// Verify сравнивает хеши за постоянное время.
func (h MD5Hasher) Verify(hash, password string) bool {
	got, _ := h.Hash(password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1
}

// BcryptHasher солёный медленный хеш. bcrypt принимает не больше 72 байт,
// поэтому пароль сначала сворачивается в base64(sha256), это 44 байта для любой длины.
type BcryptHasher struct {
	Cost int
}

// Hash возвращает bcrypt-хеш пароля.
func (h BcryptHasher) Hash(password string) (string, error) {
	const op = "password.BcryptHasher.Hash"
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword(prehash(password), cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// Verify проверяет пароль по bcrypt-хешу.
func (BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(password)) == nil
}

func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

// CompatHasher хеширует через bcrypt, но принимает и старые md5-хеши.
type CompatHasher struct {
	Bcrypt BcryptHasher
}

// Hash возвращает bcrypt-хеш.
func (h CompatHasher) Hash(password string) (string, error) {
	return h.Bcrypt.Hash(password)
}

// Verify выбирает алгоритм по формату сохранённого хеша.
func (h CompatHasher) Verify(hash, password string) bool {
	if IsLegacy(hash) {
		return MD5Hasher{}.Verify(hash, password)
	}
	return h.Bcrypt.Verify(hash, password)
}

// NeedsRehash сообщает, что хеш в старом формате и его стоит пересчитать после успешного входа.
func (CompatHasher) NeedsRehash(hash string) bool {
	return IsLegacy(hash)
}

// IsLegacy проверяет, что хеш похож на старый md5 hex.
func IsLegacy(hash string) bool {
	if len(hash) != LegacyHashLength {
		return false
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
