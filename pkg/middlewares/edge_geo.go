package middlewares

import (
	"crypto/subtle"
	"fmt"
	"net"
	"strings"

	"video_ingest_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ViewerCountry c.Locals name of the trusted viewer country, empty when unknown
const ViewerCountry = "viewer_country"

// EdgeGeoConfig edge-provided geo header settings
type EdgeGeoConfig struct {
	CountryHeader  string
	SecretHeader   string
	Secret         string
	TrustedProxies []string
}

// EdgeGeo copy the edge country header into c.Locals(ViewerCountry) only when the
// request proves it came through the edge: matching shared secret or a trusted proxy address.
// Untrusted requests get an empty country.
func EdgeGeo(cfg EdgeGeoConfig) (fiber.Handler, error) {
	nets := make([]*net.IPNet, 0, len(cfg.TrustedProxies))
	for _, cidr := range cfg.TrustedProxies {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if !strings.Contains(cidr, "/") {
			if strings.Contains(cidr, ":") {
				cidr += "/128"
			} else {
				cidr += "/32"
			}
		}
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		nets = append(nets, n)
	}
	secret := []byte(cfg.Secret)

	return func(c *fiber.Ctx) error {
		country := strings.TrimSpace(c.Get(cfg.CountryHeader))
		if country != "" && !fromEdge(c, cfg.SecretHeader, secret, nets) {
			logger.Log.Debug("ignore untrusted geo header", zap.String("ip", c.IP()))
			country = ""
		}
		c.Locals(ViewerCountry, country)
		return c.Next()
	}, nil
}

func fromEdge(c *fiber.Ctx, secretHeader string, secret []byte, nets []*net.IPNet) bool {
	if len(secret) > 0 && secretHeader != "" {
		got := []byte(c.Get(secretHeader))
		if subtle.ConstantTimeCompare(got, secret) == 1 {
			return true
		}
	}
	ip := net.ParseIP(c.IP())
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// GetViewerCountry read the country stored by EdgeGeo
func GetViewerCountry(c *fiber.Ctx) string {
	v, _ := c.Locals(ViewerCountry).(string)
	return v
}
