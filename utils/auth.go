package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/netip"
	"strconv"
)

// ClientAddr returns the host part of the request's remote address.
func ClientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HashClientKey derives the usage-ledger key of a client address as an
// HMAC-SHA256 keyed with the session secret.
func HashClientKey(secret, addr string) string {
	if addr == "" {
		return "" // anonymous
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(addr))
	return hex.EncodeToString(mac.Sum(nil))
}

// MaskClient masks a client address for display next to its hashed key.
// IPv4 keeps the first two octets, IPv6 keeps the /48 prefix, anything else
// keeps at most four leading and four trailing characters.
func MaskClient(addr string) string {
	if addr == "" {
		return ""
	}
	if ip, err := netip.ParseAddr(addr); err == nil {
		ip = ip.Unmap()
		if ip.Is4() {
			b := ip.As4()
			return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + ".*.*"
		}
		return netip.PrefixFrom(ip.WithZone(""), 48).Masked().String()
	}

	if len(addr) <= 4 {
		return addr + "..."
	}
	if len(addr) <= 8 {
		return addr[:4] + "..."
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
