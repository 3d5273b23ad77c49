package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const metersPerMile = 1609.344

// ErrNoRoute means a place could not be geocoded or routed. Callers degrade to
// zero miles.
var ErrNoRoute = errors.New("routing: no route")

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Route is a driving route with its simplified geometry.
type Route struct {
	Miles    float64
	Geometry []Point
}

// Client looks up driving distances with OSRM and place names with Nominatim.
type Client struct {
	osrm      *resty.Client
	geocoder  *resty.Client
	limiter   *rate.Limiter
	samples   int
	userAgent string
}

type Option func(*Client)

func WithRouteURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.osrm.SetBaseURL(u)
		}
	}
}

func WithGeocoderURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.geocoder.SetBaseURL(u)
		}
	}
}

// WithRateLimit spaces geocoder calls; the public Nominatim policy is one per second.
func WithRateLimit(every time.Duration) Option {
	return func(c *Client) {
		if every <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(every), 1)
	}
}

// WithSamples sets how many points of a cross-state route are reverse geocoded.
func WithSamples(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.samples = n
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		osrm:      resty.New().SetBaseURL("https://router.project-osrm.org").SetTimeout(30 * time.Second),
		geocoder:  resty.New().SetBaseURL("https://nominatim.openstreetmap.org").SetTimeout(30 * time.Second),
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		samples:   12,
		userAgent: "dispatch-bot/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.geocoder.SetHeader("User-Agent", c.userAgent)
	return c
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves a "City, ST" place.
func (c *Client) Geocode(ctx context.Context, place string) (Point, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Point{}, err
	}
	var results []searchResult
	resp, err := c.geocoder.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":            place,
			"format":       "json",
			"limit":        "1",
			"countrycodes": "us",
		}).
		Get("/search")
	if err != nil {
		return Point{}, fmt.Errorf("routing: geocode %q: %w", place, err)
	}
	if resp.IsError() {
		return Point{}, fmt.Errorf("routing: geocode %q: status %d", place, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), &results); err != nil {
		return Point{}, fmt.Errorf("routing: decode geocode %q: %w", place, err)
	}
	if len(results) == 0 {
		return Point{}, fmt.Errorf("%w: %q not found", ErrNoRoute, place)
	}
	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return Point{}, fmt.Errorf("routing: bad coordinates for %q", place)
	}
	return Point{Lat: lat, Lon: lon}, nil
}

type reverseResult struct {
	Address map[string]string `json:"address"`
}

// ReverseState returns the two-letter state code containing p, or "" when the
// point is outside any US state.
func (c *Client) ReverseState(ctx context.Context, p Point) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.geocoder.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":    strconv.FormatFloat(p.Lat, 'f', 6, 64),
			"lon":    strconv.FormatFloat(p.Lon, 'f', 6, 64),
			"format": "json",
			"zoom":   "5",
		}).
		Get("/reverse")
	if err != nil {
		return "", fmt.Errorf("routing: reverse %v: %w", p, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("routing: reverse %v: status %d", p, resp.StatusCode())
	}
	var out reverseResult
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("routing: decode reverse %v: %w", p, err)
	}
	iso := out.Address["ISO3166-2-lvl4"]
	if code, ok := strings.CutPrefix(iso, "US-"); ok {
		return code, nil
	}
	return "", nil
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route asks OSRM for the driving route between two points.
func (c *Client) Route(ctx context.Context, from, to Point) (Route, error) {
	path := fmt.Sprintf("/route/v1/driving/%f,%f;%f,%f", from.Lon, from.Lat, to.Lon, to.Lat)
	resp, err := c.osrm.R().SetContext(ctx).
		SetQueryParams(map[string]string{"overview": "simplified", "geometries": "geojson"}).
		Get(path)
	if err != nil {
		return Route{}, fmt.Errorf("routing: route: %w", err)
	}
	var out osrmResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Route{}, fmt.Errorf("routing: decode route: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("%w: osrm code %q", ErrNoRoute, out.Code)
	}
	r := out.Routes[0]
	geom := make([]Point, 0, len(r.Geometry.Coordinates))
	for _, xy := range r.Geometry.Coordinates {
		geom = append(geom, Point{Lat: xy[1], Lon: xy[0]})
	}
	return Route{Miles: r.Distance / metersPerMile, Geometry: geom}, nil
}

// Distance returns driving miles between two places.
func (c *Client) Distance(ctx context.Context, origin, destination string) (decimal.Decimal, error) {
	r, err := c.route(ctx, origin, destination)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(r.Miles).Round(0), nil
}

func (c *Client) route(ctx context.Context, origin, destination string) (Route, error) {
	from, err := c.Geocode(ctx, origin)
	if err != nil {
		return Route{}, err
	}
	to, err := c.Geocode(ctx, destination)
	if err != nil {
		return Route{}, err
	}
	return c.Route(ctx, from, to)
}

// StateMiles splits the driving miles of one leg by state. A leg inside one
// state is attributed whole; otherwise sampled route points are reverse
// geocoded and each stretch of geometry is credited to the state it lies in,
// scaled so the parts add up to the routed distance.
func (c *Client) StateMiles(ctx context.Context, origin, destination string) (map[string]decimal.Decimal, error) {
	r, err := c.route(ctx, origin, destination)
	if err != nil {
		return nil, err
	}
	fromState, toState := StateOf(origin), StateOf(destination)
	if fromState != "" && fromState == toState {
		return map[string]decimal.Decimal{fromState: decimal.NewFromFloat(r.Miles).Round(2)}, nil
	}

	stretches := split(r.Geometry, c.samples)
	raw := map[string]float64{}
	var geomTotal float64
	for _, s := range stretches {
		state, err := c.ReverseState(ctx, s.mid)
		if err != nil {
			return nil, err
		}
		if state == "" {
			state = fromState
		}
		raw[state] += s.length
		geomTotal += s.length
	}
	out := map[string]decimal.Decimal{}
	if geomTotal == 0 {
		if fromState != "" {
			out[fromState] = decimal.NewFromFloat(r.Miles).Round(2)
		}
		return out, nil
	}
	scale := r.Miles / geomTotal
	for state, miles := range raw {
		if state == "" {
			continue
		}
		out[state] = decimal.NewFromFloat(miles * scale).Round(2)
	}
	return out, nil
}

type stretch struct {
	mid    Point
	length float64
}

// split cuts the polyline into n stretches of roughly equal vertex count.
func split(geom []Point, n int) []stretch {
	if len(geom) < 2 {
		return nil
	}
	segments := len(geom) - 1
	if n > segments {
		n = segments
	}
	out := make([]stretch, 0, n)
	for i := 0; i < n; i++ {
		lo := i * segments / n
		hi := (i + 1) * segments / n
		var length float64
		for j := lo; j < hi; j++ {
			length += haversineMiles(geom[j], geom[j+1])
		}
		out = append(out, stretch{mid: geom[(lo+hi)/2], length: length})
	}
	return out
}

func haversineMiles(a, b Point) float64 {
	const earthRadiusMiles = 3958.8
	rad := math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLon := (b.Lon - a.Lon) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}

var stateSuffix = regexp.MustCompile(`,\s*([A-Za-z]{2})\s*(?:\d{5})?\s*$`)

// StateOf extracts the state code from "City, ST".
func StateOf(place string) string {
	m := stateSuffix.FindStringSubmatch(place)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}
