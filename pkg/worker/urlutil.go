package worker

import "net/url"

// parsedURL mirrors the subset of the Web URL interface the polyfill's
// URL class assigns onto itself via Object.assign(this, JSON.parse(...)).
type parsedURL struct {
	Href     string `json:"href"`
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
}

// parseURL uses net/url rather than a hand-rolled URL grammar — the
// ecosystem already solved this, no reason to re-derive it in JS.
func parseURL(raw string) (parsedURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return parsedURL{}, err
	}
	search := ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	return parsedURL{
		Href:     u.String(),
		Protocol: u.Scheme + ":",
		Host:     u.Host,
		Hostname: u.Hostname(),
		Port:     u.Port(),
		Pathname: u.Path,
		Search:   search,
	}, nil
}
