package app

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/securecookie"
)

// ErrNoCookieKeys is returned when a signed cookie is requested but the
// application has no cookie keys.
var ErrNoCookieKeys = errors.New("signed cookies require cookie keys")

// CookieOptions controls how a cookie is read or written.
type CookieOptions struct {
	Signed   bool
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// Cookies is the cookie jar of a request.
type Cookies interface {
	// Get returns the value of the named cookie. With Signed set, the
	// value is verified against the jar's keys and false is returned when
	// it does not verify.
	Get(name string, opts *CookieOptions) (string, bool)

	// Set writes a cookie to the response.
	Set(name, value string, opts *CookieOptions) error

	// Keys returns the signing keys, newest first.
	Keys() [][]byte
}

// newCookieCodecs creates one hash-only codec per key. Values are signed
// with the first key and verified against all of them, so keys can be
// rotated by prepending.
func newCookieCodecs(keys [][]byte) []securecookie.Codec {
	codecs := make([]securecookie.Codec, 0, len(keys))
	for _, k := range keys {
		codecs = append(codecs, securecookie.New(k, nil))
	}
	return codecs
}

// cookieJar reads cookies from a request and writes them to a response.
// Cookies set during the request are visible to later Gets.
type cookieJar struct {
	req    *http.Request
	res    http.ResponseWriter
	keys   [][]byte
	codecs []securecookie.Codec

	mu      sync.Mutex
	pending map[string]string
}

func newCookieJar(req *http.Request, res http.ResponseWriter, keys [][]byte, codecs []securecookie.Codec) *cookieJar {
	return &cookieJar{req: req, res: res, keys: keys, codecs: codecs, pending: make(map[string]string)}
}

func (j *cookieJar) Get(name string, opts *CookieOptions) (string, bool) {
	j.mu.Lock()
	raw, ok := j.pending[name]
	j.mu.Unlock()
	if !ok {
		ck, err := j.req.Cookie(name)
		if err != nil {
			return "", false
		}
		raw = ck.Value
	}

	if opts == nil || !opts.Signed {
		return raw, true
	}
	if len(j.codecs) == 0 {
		return "", false
	}
	var value string
	if err := securecookie.DecodeMulti(name, raw, &value, j.codecs...); err != nil {
		return "", false
	}
	return value, true
}

func (j *cookieJar) Set(name, value string, opts *CookieOptions) error {
	if opts == nil {
		opts = &CookieOptions{}
	}
	raw := value
	if opts.Signed {
		if len(j.codecs) == 0 {
			return ErrNoCookieKeys
		}
		encoded, err := securecookie.EncodeMulti(name, value, j.codecs...)
		if err != nil {
			return fmt.Errorf("sign cookie %s: %w", name, err)
		}
		raw = encoded
	}

	path := opts.Path
	if path == "" {
		path = "/"
	}
	http.SetCookie(j.res, &http.Cookie{
		Name:     name,
		Value:    raw,
		Path:     path,
		Domain:   opts.Domain,
		MaxAge:   opts.MaxAge,
		Secure:   opts.Secure,
		HttpOnly: opts.HTTPOnly,
		SameSite: opts.SameSite,
	})

	j.mu.Lock()
	j.pending[name] = raw
	j.mu.Unlock()
	return nil
}

func (j *cookieJar) Keys() [][]byte {
	return j.keys
}
