package document

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/storage"
)

// Source returns the raw bytes of a reference.
type Source interface {
	Fetch(ctx context.Context, ref Reference) (*Fetched, error)
}

// ObjectStore downloads from an S3-compatible bucket.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key string) ([]byte, *storage.ObjectInfo, error)
}

// RemotePolicy gates http(s) references. The zero value rejects them.
type RemotePolicy struct {
	Enabled bool
	// AllowedHosts limits fetches to these hosts and their subdomains. Empty allows any host.
	AllowedHosts []string
	// AllowPrivate permits loopback, private and link-local addresses.
	AllowPrivate bool
}

// Fetcher resolves inline text, data: URIs, local files, HTTP URLs and S3 objects.
type Fetcher struct {
	HTTP     *http.Client
	Store    ObjectStore // nil disables s3://
	MaxBytes int64
	// AllowLocal permits plain paths and file:// URIs.
	AllowLocal bool
	Remote     RemotePolicy
}

// ErrBlockedAddress is returned when a remote document resolves to a non-public address.
var ErrBlockedAddress = errors.New("address is not publicly routable")

func NewFetcher(store ObjectStore, maxBytes int64, allowLocal bool) *Fetcher {
	f := &Fetcher{
		Store:      store,
		MaxBytes:   maxBytes,
		AllowLocal: allowLocal,
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: f.dialControl}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	// A proxy would dial on our behalf and hide the target address.
	tr.Proxy = nil
	tr.DialContext = dialer.DialContext
	f.HTTP = &http.Client{
		Timeout:   60 * time.Second,
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return f.checkHost(req.URL)
		},
	}
	return f
}

var errEmpty = errors.New("document is empty")

func (f *Fetcher) Fetch(ctx context.Context, ref Reference) (*Fetched, error) {
	if ref.Text != "" {
		return &Fetched{Name: ref.Name, MIMEType: "text/plain", Data: []byte(ref.Text)}, nil
	}
	uri := strings.TrimSpace(ref.URI)
	if i := strings.Index(uri, "#"); i >= 0 && !strings.HasPrefix(uri, "data:") {
		uri = uri[:i]
	}
	if uri == "" {
		return nil, errEmpty
	}

	var (
		out *Fetched
		err error
	)
	switch {
	case strings.HasPrefix(uri, "data:"):
		out, err = decodeDataURI(uri)
	case strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://"):
		out, err = f.fetchHTTP(ctx, uri)
	case strings.HasPrefix(uri, "s3://"):
		out, err = f.fetchS3(ctx, uri)
	default:
		out, err = f.fetchLocal(strings.TrimPrefix(uri, "file://"))
	}
	if err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, errEmpty
	}
	if f.MaxBytes > 0 && int64(len(out.Data)) > f.MaxBytes {
		return nil, fmt.Errorf("document is %d bytes, limit is %d", len(out.Data), f.MaxBytes)
	}
	if ref.Name != "" {
		out.Name = ref.Name
	}
	if ref.MIMEType != "" {
		out.MIMEType = ref.MIMEType
	}
	return out, nil
}

// decodeDataURI handles data:[<mime>][;base64],<payload>.
func decodeDataURI(uri string) (*Fetched, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	mime := meta
	isBase64 := false
	if strings.HasSuffix(meta, ";base64") {
		mime = strings.TrimSuffix(meta, ";base64")
		isBase64 = true
	}
	if mime == "" {
		mime = "text/plain"
	}
	if !isBase64 {
		text, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data URI: %w", err)
		}
		return &Fetched{MIMEType: mime, Data: []byte(text)}, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URI: %w", err)
	}
	return &Fetched{MIMEType: mime, Data: data}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, uri string) (*Fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if err := f.checkHost(req.URL); err != nil {
		return nil, err
	}
	hc := f.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	name := path.Base(req.URL.Path)
	if name == "/" || name == "." {
		name = req.URL.Host
	}
	return &Fetched{Name: name, MIMEType: resp.Header.Get("Content-Type"), Data: data}, nil
}

func (f *Fetcher) checkHost(u *url.URL) error {
	if !f.Remote.Enabled {
		return errors.New("remote documents are not allowed")
	}
	if len(f.Remote.AllowedHosts) == 0 {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range f.Remote.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" && (host == h || strings.HasSuffix(host, "."+h)) {
			return nil
		}
	}
	return fmt.Errorf("host %s is not in the allowed list", host)
}

// dialControl runs after name resolution, so it sees the address actually dialled.
func (f *Fetcher) dialControl(_, address string, _ syscall.RawConn) error {
	if f.Remote.AllowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); ip == nil || !publicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func publicIP(ip net.IP) bool {
	switch {
	case ip.IsLoopback(), ip.IsPrivate(), ip.IsUnspecified(),
		ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(), ip.IsMulticast():
		return false
	}
	return !sharedAddressSpace.Contains(ip)
}

func (f *Fetcher) fetchS3(ctx context.Context, uri string) (*Fetched, error) {
	if f.Store == nil {
		return nil, errors.New("s3 storage is not configured")
	}
	p := strings.TrimPrefix(uri, "s3://")
	slash := strings.Index(p, "/")
	if slash <= 0 || slash == len(p)-1 {
		return nil, fmt.Errorf("invalid s3 url: %s", uri)
	}
	data, info, err := f.Store.Download(ctx, p[:slash], p[slash+1:])
	if err != nil {
		return nil, err
	}
	return &Fetched{Name: info.Name, MIMEType: info.ContentType, Data: data}, nil
}

func (f *Fetcher) fetchLocal(p string) (*Fetched, error) {
	if !f.AllowLocal {
		return nil, errors.New("local files are not allowed")
	}
	st, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	if f.MaxBytes > 0 && st.Size() > f.MaxBytes {
		return nil, fmt.Errorf("document is %d bytes, limit is %d", st.Size(), f.MaxBytes)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return &Fetched{Name: path.Base(p), Data: data}, nil
}
