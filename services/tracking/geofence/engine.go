// Package geofence derives proximity alerts, arrivals, departures and ETAs
// from a single location point and the route's ordered stops.
//
// The engine holds no state between calls: the per-session Progress is owned
// by the session and passed in and out of Evaluate.
package geofence

import (
	"errors"
	"math"
	"time"

	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/internal/utils"
)

var (
	ErrNoTarget       = errors.New("all stops already departed")
	ErrNotTarget      = errors.New("stop is not the current target stop")
	ErrAlreadyArrived = errors.New("already arrived at stop")
	ErrNotArrived     = errors.New("cannot depart a stop that was not arrived at")
)

// Config holds the engine thresholds
type Config struct {
	FarThresholdMeters  float64
	NearThresholdMeters float64
	DepartureMargin     float64
	DwellPoints         int
	SpeedSamples        int
	MinSpeedMps         float64
}

// ConfigFrom extracts the engine thresholds from the tracking configuration
func ConfigFrom(cfg models.TrackingConfig) Config {
	return Config{
		FarThresholdMeters:  cfg.FarThresholdMeters,
		NearThresholdMeters: cfg.NearThresholdMeters,
		DepartureMargin:     cfg.DepartureMargin,
		DwellPoints:         cfg.DwellPoints,
		SpeedSamples:        cfg.SpeedSamples,
		MinSpeedMps:         cfg.MinSpeedMps,
	}
}

// Progress is the per-session geofence state towards the current target stop
type Progress struct {
	TargetIndex   int
	FarAlerted    bool
	NearAlerted   bool
	InsideCount   int
	Arrived       bool
	SmoothedSpeed float64
	Samples       int
}

// Target returns the current target stop, or nil once every stop was departed
func (p Progress) Target(stops []models.Stop) *models.Stop {
	if p.TargetIndex < 0 || p.TargetIndex >= len(stops) {
		return nil
	}
	return &stops[p.TargetIndex]
}

// advance moves the target to the next stop and re-arms the thresholds
func (p Progress) advance() Progress {
	return Progress{
		TargetIndex:   p.TargetIndex + 1,
		SmoothedSpeed: p.SmoothedSpeed,
		Samples:       p.Samples,
	}
}

// Alert is a proximity threshold crossing
type Alert struct {
	Threshold      models.ThresholdType
	StopID         string
	DistanceMeters float64
	EtaMinutes     float64
}

// Transition is an arrival or departure declared by the engine
type Transition struct {
	Type   models.StopEventType
	StopID string
}

// Result is everything derived from one point
type Result struct {
	HasTarget      bool
	TargetStopID   string
	DistanceMeters float64
	EtaMinutes     float64
	Alerts         []Alert
	Transitions    []Transition
}

// Engine evaluates points against a route's stops
type Engine struct {
	cfg   Config
	alpha float64
}

// NewEngine creates an engine. Non-positive values fall back to defaults.
func NewEngine(cfg Config) *Engine {
	def := ConfigFrom(models.DefaultTrackingConfig())
	if cfg.FarThresholdMeters <= 0 {
		cfg.FarThresholdMeters = def.FarThresholdMeters
	}
	if cfg.NearThresholdMeters <= 0 {
		cfg.NearThresholdMeters = def.NearThresholdMeters
	}
	if cfg.DepartureMargin < 1 {
		cfg.DepartureMargin = def.DepartureMargin
	}
	if cfg.DwellPoints <= 0 {
		cfg.DwellPoints = def.DwellPoints
	}
	if cfg.SpeedSamples <= 0 {
		cfg.SpeedSamples = def.SpeedSamples
	}
	if cfg.MinSpeedMps <= 0 {
		cfg.MinSpeedMps = def.MinSpeedMps
	}
	return &Engine{cfg: cfg, alpha: 2.0 / float64(cfg.SpeedSamples+1)}
}

// Config returns the effective thresholds
func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate feeds one accepted point into p. elapsed is the time since the
// session started and is only used for the scheduled ETA fallback.
func (e *Engine) Evaluate(p Progress, stops []models.Stop, point models.LocationPoint, elapsed time.Duration) (Progress, Result) {
	if !point.SpeedMissing {
		p = e.smoothSpeed(p, point.Speed)
	}

	var res Result
	target := p.Target(stops)
	if target == nil {
		return p, res
	}

	here := utils.GeoPoint{Latitude: point.Latitude, Longitude: point.Longitude}
	dist := utils.DistanceMeters(here, utils.GeoPoint{Latitude: target.Latitude, Longitude: target.Longitude})
	eta := e.eta(p, dist, target, elapsed)

	res.HasTarget = true
	res.TargetStopID = target.ID
	res.DistanceMeters = dist
	res.EtaMinutes = eta

	// Departure: only after an arrival and beyond the hysteresis margin.
	if p.Arrived {
		if dist > target.RadiusMeters*e.cfg.DepartureMargin {
			res.Transitions = append(res.Transitions, Transition{Type: models.StopEventDeparted, StopID: target.ID})
			p = p.advance()
			next, nres := e.evaluateTarget(p, stops, here, elapsed)
			nres.Transitions = append(res.Transitions, nres.Transitions...)
			return next, nres
		}
		return p, res
	}

	p, res = e.approach(p, target, dist, eta, res)
	return p, res
}

// evaluateTarget re-runs the approach logic against the freshly advanced target
func (e *Engine) evaluateTarget(p Progress, stops []models.Stop, here utils.GeoPoint, elapsed time.Duration) (Progress, Result) {
	var res Result
	target := p.Target(stops)
	if target == nil {
		return p, res
	}
	dist := utils.DistanceMeters(here, utils.GeoPoint{Latitude: target.Latitude, Longitude: target.Longitude})
	eta := e.eta(p, dist, target, elapsed)
	res.HasTarget = true
	res.TargetStopID = target.ID
	res.DistanceMeters = dist
	res.EtaMinutes = eta
	return e.approach(p, target, dist, eta, res)
}

func (e *Engine) approach(p Progress, target *models.Stop, dist, eta float64, res Result) (Progress, Result) {
	switch {
	case dist <= e.cfg.NearThresholdMeters && !p.NearAlerted:
		// Entering near directly also consumes far for this approach.
		p.FarAlerted = true
		p.NearAlerted = true
		res.Alerts = append(res.Alerts, e.alert(models.ThresholdNear, target.ID, dist, eta))
	case dist <= e.cfg.FarThresholdMeters && !p.FarAlerted:
		p.FarAlerted = true
		res.Alerts = append(res.Alerts, e.alert(models.ThresholdFar, target.ID, dist, eta))
	}

	if dist <= target.RadiusMeters {
		p.InsideCount++
		if p.InsideCount >= e.cfg.DwellPoints {
			p.Arrived = true
			res.Transitions = append(res.Transitions, Transition{Type: models.StopEventArrived, StopID: target.ID})
		}
	} else {
		p.InsideCount = 0
	}
	return p, res
}

func (e *Engine) alert(t models.ThresholdType, stopID string, dist, eta float64) Alert {
	return Alert{Threshold: t, StopID: stopID, DistanceMeters: dist, EtaMinutes: eta}
}

func (e *Engine) smoothSpeed(p Progress, speed float64) Progress {
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return p
	}
	if p.Samples == 0 {
		p.SmoothedSpeed = speed
	} else {
		p.SmoothedSpeed = e.alpha*speed + (1-e.alpha)*p.SmoothedSpeed
	}
	p.Samples++
	return p
}

// eta returns minutes to target. Below the minimum smoothed speed it falls
// back to the stop's scheduled offset from session start.
func (e *Engine) eta(p Progress, dist float64, target *models.Stop, elapsed time.Duration) float64 {
	if p.Samples > 0 && p.SmoothedSpeed >= e.cfg.MinSpeedMps {
		return dist / p.SmoothedSpeed / 60.0
	}
	remaining := target.ArrivalOffset - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining.Minutes()
}

// ETA exposes the ETA computation for snapshots
func (e *Engine) ETA(p Progress, stops []models.Stop, point models.LocationPoint, elapsed time.Duration) (float64, bool) {
	target := p.Target(stops)
	if target == nil {
		return 0, false
	}
	dist := utils.DistanceMeters(
		utils.GeoPoint{Latitude: point.Latitude, Longitude: point.Longitude},
		utils.GeoPoint{Latitude: target.Latitude, Longitude: target.Longitude},
	)
	return e.eta(p, dist, target, elapsed), true
}

// Mark applies a driver-reported arrival or departure at stopIndex
func (e *Engine) Mark(p Progress, stops []models.Stop, stopIndex int, t models.StopEventType) (Progress, error) {
	if p.Target(stops) == nil {
		return p, ErrNoTarget
	}
	if stopIndex != p.TargetIndex {
		return p, ErrNotTarget
	}
	switch t {
	case models.StopEventArrived:
		if p.Arrived {
			return p, ErrAlreadyArrived
		}
		p.Arrived = true
		p.FarAlerted = true
		p.NearAlerted = true
		p.InsideCount = e.cfg.DwellPoints
		return p, nil
	case models.StopEventDeparted:
		if !p.Arrived {
			return p, ErrNotArrived
		}
		return p.advance(), nil
	}
	return p, ErrNotTarget
}
