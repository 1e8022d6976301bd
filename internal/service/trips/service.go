package trips

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gocomet/ridematch/internal/domain/driver"
	"github.com/gocomet/ridematch/internal/domain/trip"
	"github.com/gocomet/ridematch/internal/service/matching"
	"github.com/gocomet/ridematch/internal/service/pricing"
	"github.com/gocomet/ridematch/internal/service/routing"
	apperrors "github.com/gocomet/ridematch/pkg/errors"
	"github.com/gocomet/ridematch/pkg/events"
	"github.com/gocomet/ridematch/pkg/identity"
	"github.com/gocomet/ridematch/pkg/logger"
	"github.com/gocomet/ridematch/pkg/monitoring"
)

const (
	eventTimeout       = 5 * time.Second
	defaultEventBuffer = 256
)

// Deps are the collaborators of the lifecycle manager
type Deps struct {
	Trips    trip.Repository
	Drivers  driver.Repository
	Finder   *matching.Service
	Router   *routing.Service
	Pricing  *pricing.Calculator
	Notifier Notifier
	Events   events.Publisher
	NewRelic *monitoring.NewRelicApp
	Logger   *logger.Logger
	Clock    func() time.Time
	// EventBuffer bounds the event log queue. Events past it are dropped.
	EventBuffer int
}

// Service runs trips through their lifecycle. Every read-check-write sequence runs
// under the actor's lock and then the trip's lock, always in that order, and the
// store re-checks the same rules on write.
type Service struct {
	trips    trip.Repository
	drivers  driver.Repository
	finder   *matching.Service
	router   *routing.Service
	pricing  *pricing.Calculator
	notifier Notifier
	events   events.Publisher
	nr       *monitoring.NewRelicApp
	logger   *logger.Logger
	now      func() time.Time
	locks    *keyedLocks

	// a single writer drains the queue so one trip's events keep commit order
	eventMu     sync.RWMutex
	eventQueue  chan events.TripEvent
	eventClosed bool
	eventDone   chan struct{}
}

// NewService creates a new trip lifecycle service
func NewService(d Deps) *Service {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.NewRelic == nil {
		d.NewRelic = monitoring.Disabled()
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.EventBuffer <= 0 {
		d.EventBuffer = defaultEventBuffer
	}
	s := &Service{
		trips:    d.Trips,
		drivers:  d.Drivers,
		finder:   d.Finder,
		router:   d.Router,
		pricing:  d.Pricing,
		notifier: d.Notifier,
		events:   d.Events,
		nr:       d.NewRelic,
		logger:   d.Logger,
		now:      func() time.Time { return d.Clock().UTC() },
		locks:    newKeyedLocks(),

		eventQueue: make(chan events.TripEvent, d.EventBuffer),
		eventDone:  make(chan struct{}),
	}
	go s.publishEvents()
	return s
}

// RequestInput is a validated trip request
type RequestInput struct {
	RiderID       string
	Pickup        trip.Location
	Dropoff       trip.Location
	VehicleType   string
	PaymentMethod trip.PaymentMethod
}

// EstimateInput is a validated estimate request
type EstimateInput struct {
	Pickup      trip.Location
	Dropoff     trip.Location
	VehicleType string
}

// NearbyDriver is one entry of the estimate preview
type NearbyDriver struct {
	DriverID   string          `json:"driverId"`
	Vehicle    driver.Vehicle  `json:"vehicle"`
	Location   trip.Coordinate `json:"location"`
	DistanceKM float64         `json:"distanceKm"`
	ETASeconds *int            `json:"etaSeconds"`
}

// Estimate is a priced route with a preview of nearby drivers
type Estimate struct {
	Fare          float64           `json:"fare"`
	Distance      int               `json:"distance"`
	Duration      int               `json:"duration"`
	Path          []trip.Coordinate `json:"path"`
	VehicleType   trip.VehicleType  `json:"vehicleType"`
	NearbyDrivers []NearbyDriver    `json:"nearbyDrivers"`
}

func validateLegs(pickup, dropoff trip.Location) error {
	if !pickup.Coordinate().IsValid() {
		return apperrors.Validation("pickup coordinates are out of range", nil)
	}
	if !dropoff.Coordinate().IsValid() {
		return apperrors.Validation("dropoff coordinates are out of range", nil)
	}
	return nil
}

// quote routes and prices a trip. Unknown vehicle types are priced and stored as
// the default tier.
func (s *Service) quote(ctx context.Context, pickup, dropoff trip.Location, rawVehicle string) (*routing.Route, trip.VehicleType, float64, error) {
	vehicleType, known := trip.ParseVehicleType(rawVehicle)
	if !known {
		s.logger.Debug("Unknown vehicle type, using default tier",
			logger.String("vehicle_type", rawVehicle),
			logger.String("default", string(vehicleType)),
		)
	}

	route, err := s.router.CalculateRoute(ctx, pickup.Coordinate(), dropoff.Coordinate())
	if err != nil {
		return nil, "", 0, err
	}
	fare := s.pricing.ComputeFare(vehicleType, route.DistanceMeters)
	if fare <= 0 {
		return nil, "", 0, apperrors.Internal("no positive fare configured for "+string(vehicleType), nil)
	}
	return route, vehicleType, fare, nil
}

// CreateRequest opens a new REQUESTED trip for the rider and offers it to drivers.
func (s *Service) CreateRequest(ctx context.Context, in RequestInput) (*trip.Trip, error) {
	if in.RiderID == "" {
		return nil, apperrors.Validation("rider id is required", nil)
	}
	if err := validateLegs(in.Pickup, in.Dropoff); err != nil {
		return nil, err
	}
	if !in.PaymentMethod.IsValid() {
		return nil, apperrors.Validation("paymentMethod must be CASH or WALLET", nil)
	}

	unlock := s.locks.Lock(actorKey(in.RiderID))
	defer unlock()

	current, err := s.trips.ActiveByRider(ctx, in.RiderID)
	if err != nil {
		return nil, apperrors.Internal("failed to look up active trip", err)
	}
	if current != nil {
		return nil, s.reject("create", apperrors.ConflictingActiveTrip(in.RiderID))
	}

	route, vehicleType, fare, err := s.quote(ctx, in.Pickup, in.Dropoff, in.VehicleType)
	if err != nil {
		return nil, s.reject("create", err)
	}

	t := &trip.Trip{
		RiderID:         in.RiderID,
		PickupLocation:  in.Pickup,
		DropoffLocation: in.Dropoff,
		VehicleType:     vehicleType,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   trip.PaymentPending,
		Fare:            fare,
		DistanceMeters:  route.DistanceMeters,
		DurationSeconds: route.DurationSeconds,
		Path:            route.Path,
		Status:          trip.StatusRequested,
		CreatedAt:       s.now(),
	}
	if err := s.trips.Create(ctx, t); err != nil {
		if errors.Is(err, trip.ErrRiderHasActiveTrip) {
			return nil, s.reject("create", apperrors.ConflictingActiveTrip(in.RiderID))
		}
		return nil, apperrors.Internal("failed to create trip", err)
	}

	s.logger.Info("Trip requested",
		logger.String("trip_id", t.ID),
		logger.String("rider_id", t.RiderID),
		logger.String("vehicle_type", string(t.VehicleType)),
		logger.Float64("fare", t.Fare),
		logger.Int("distance_meters", t.DistanceMeters),
	)
	s.committed(t, events.TripRequested)
	s.nr.RecordTripRequested(string(t.VehicleType), t.Fare)
	s.notifyRequested(t)

	return t, nil
}

// Estimate prices a route and previews nearby drivers without persisting anything.
func (s *Service) Estimate(ctx context.Context, in EstimateInput) (*Estimate, error) {
	if err := validateLegs(in.Pickup, in.Dropoff); err != nil {
		return nil, err
	}

	route, vehicleType, fare, err := s.quote(ctx, in.Pickup, in.Dropoff, in.VehicleType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	query := s.finder.Defaults(in.Pickup.Coordinate())
	query.Exclude = s.busyDrivers(ctx)
	candidates := s.finder.FindCandidates(ctx, query)
	ranked := s.router.RankByTravelTime(ctx, candidates, in.Pickup.Coordinate())

	monitoring.CandidatesFound.Observe(float64(len(ranked)))
	s.nr.RecordCandidateSearch(float64(time.Since(start).Milliseconds()), len(ranked))

	nearby := make([]NearbyDriver, 0, len(ranked))
	for _, c := range ranked {
		nearby = append(nearby, NearbyDriver{
			DriverID:   c.Driver.ID,
			Vehicle:    c.Driver.Vehicle,
			Location:   c.Driver.CurrentLocation,
			DistanceKM: c.DistanceKM,
			ETASeconds: c.ETASeconds,
		})
	}

	return &Estimate{
		Fare:          fare,
		Distance:      route.DistanceMeters,
		Duration:      route.DurationSeconds,
		Path:          route.Path,
		VehicleType:   vehicleType,
		NearbyDrivers: nearby,
	}, nil
}

// busyDrivers lists drivers holding an accepted or in-progress trip. A lookup
// failure only widens the preview, so it is logged and ignored.
func (s *Service) busyDrivers(ctx context.Context) map[string]struct{} {
	ids, err := s.trips.ActiveDriverIDs(ctx)
	if err != nil {
		s.logger.Warn("Failed to list busy drivers", logger.Err(err))
		return nil
	}
	busy := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		busy[id] = struct{}{}
	}
	return busy
}

// Accept assigns a REQUESTED trip to the driver.
func (s *Service) Accept(ctx context.Context, tripID, driverID string) (*trip.Trip, error) {
	unlockDriver := s.locks.Lock(actorKey(driverID))
	defer unlockDriver()
	unlockTrip := s.locks.Lock(tripKey(tripID))
	defer unlockTrip()

	t, err := s.load(ctx, tripID)
	if err != nil {
		return nil, s.reject("accept", err)
	}
	if t.Status != trip.StatusRequested {
		return nil, s.reject("accept", apperrors.InvalidTransition(string(t.Status), string(trip.StatusAccepted)))
	}

	busy, err := s.trips.ActiveByDriver(ctx, driverID)
	if err != nil {
		return nil, apperrors.Internal("failed to look up driver trip", err)
	}
	if busy != nil {
		return nil, s.reject("accept", apperrors.DriverBusy(driverID))
	}

	if err := t.Accept(driverID, s.now()); err != nil {
		return nil, s.reject("accept", transitionError(err))
	}
	if err := s.save(ctx, t, trip.StatusAccepted); err != nil {
		return nil, s.reject("accept", err)
	}

	summary := s.driverSummary(ctx, driverID)
	s.logger.Info("Trip accepted",
		logger.String("trip_id", t.ID),
		logger.String("driver_id", driverID),
	)
	s.committed(t, events.TripAccepted)
	s.notifyAccepted(t, summary)

	return t, nil
}

// MarkPickup starts the ride. Only the assigned driver may call it.
func (s *Service) MarkPickup(ctx context.Context, tripID, driverID string) (*trip.Trip, error) {
	t, unlock, err := s.loadForDriver(ctx, tripID, driverID)
	if err != nil {
		return nil, s.reject("pickup", err)
	}
	defer unlock()

	if err := t.MarkPickup(s.now()); err != nil {
		return nil, s.reject("pickup", transitionError(err))
	}
	if err := s.save(ctx, t, trip.StatusInProgress); err != nil {
		return nil, s.reject("pickup", err)
	}

	s.logger.Info("Trip picked up", logger.String("trip_id", t.ID), logger.String("driver_id", driverID))
	s.committed(t, events.TripPickedUp)
	s.notifyPickedUp(t)

	return t, nil
}

// MarkComplete ends the ride and marks it paid. Only the assigned driver may call it.
func (s *Service) MarkComplete(ctx context.Context, tripID, driverID string) (*trip.Trip, error) {
	t, unlock, err := s.loadForDriver(ctx, tripID, driverID)
	if err != nil {
		return nil, s.reject("complete", err)
	}
	defer unlock()

	if err := t.MarkComplete(s.now()); err != nil {
		return nil, s.reject("complete", transitionError(err))
	}
	if err := s.save(ctx, t, trip.StatusCompleted); err != nil {
		return nil, s.reject("complete", err)
	}

	s.logger.Info("Trip completed",
		logger.String("trip_id", t.ID),
		logger.String("driver_id", driverID),
		logger.Float64("fare", t.Fare),
	)
	s.committed(t, events.TripCompleted)
	s.nr.RecordTripCompleted(t.ID, t.Fare, t.DistanceMeters, t.DurationSeconds, string(t.PaymentMethod))
	s.notifyCompleted(t)

	return t, nil
}

// loadForDriver takes the driver and trip locks and returns the trip once the
// caller is confirmed as its assigned driver.
func (s *Service) loadForDriver(ctx context.Context, tripID, driverID string) (*trip.Trip, func(), error) {
	unlockDriver := s.locks.Lock(actorKey(driverID))
	unlockTrip := s.locks.Lock(tripKey(tripID))
	unlock := func() {
		unlockTrip()
		unlockDriver()
	}

	t, err := s.load(ctx, tripID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if t.AssignedDriver() != driverID {
		unlock()
		return nil, nil, apperrors.Unauthorized("only the assigned driver may update this trip")
	}
	return t, unlock, nil
}

// Cancel cancels the actor's current trip, whether they ride it or drive it.
func (s *Service) Cancel(ctx context.Context, actorID string) (*trip.Trip, error) {
	unlockActor := s.locks.Lock(actorKey(actorID))
	defer unlockActor()

	current, err := s.trips.ActiveByRider(ctx, actorID)
	if err == nil && current == nil {
		current, err = s.trips.ActiveByDriver(ctx, actorID)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to look up active trip", err)
	}
	if current == nil {
		return nil, s.reject("cancel", apperrors.NoActiveTrip(actorID))
	}

	unlockTrip := s.locks.Lock(tripKey(current.ID))
	defer unlockTrip()

	t, err := s.load(ctx, current.ID)
	if err != nil {
		return nil, s.reject("cancel", err)
	}
	if !t.IsParticipant(actorID) {
		return nil, s.reject("cancel", apperrors.Unauthorized("only the rider or the assigned driver may cancel this trip"))
	}

	previous := t.Status
	if err := t.Cancel(actorID, s.now()); err != nil {
		return nil, s.reject("cancel", transitionError(err))
	}
	if err := s.save(ctx, t, trip.StatusCancelled); err != nil {
		return nil, s.reject("cancel", err)
	}

	byRole := string(identity.RoleRider)
	if actorID != t.RiderID {
		byRole = string(identity.RoleDriver)
	}
	s.logger.Info("Trip cancelled",
		logger.String("trip_id", t.ID),
		logger.String("cancelled_by", actorID),
		logger.String("previous_status", string(previous)),
	)
	s.committed(t, events.TripCancelled)
	s.nr.RecordTripCancelled(t.ID, string(previous), byRole)
	s.notifyCancelled(t, previous)

	return t, nil
}

// GetCurrentTrip returns the user's non-terminal trip, or nil.
func (s *Service) GetCurrentTrip(ctx context.Context, userID string) (*trip.Trip, error) {
	t, err := s.trips.ActiveByRider(ctx, userID)
	if err == nil && t == nil {
		t, err = s.trips.ActiveByDriver(ctx, userID)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to look up current trip", err)
	}
	return t, nil
}

// GetAvailableTrips lists REQUESTED trips, newest first.
func (s *Service) GetAvailableTrips(ctx context.Context) ([]*trip.Trip, error) {
	trips, err := s.trips.ListByStatus(ctx, trip.StatusRequested)
	if err != nil {
		return nil, apperrors.Internal("failed to list available trips", err)
	}
	return trips, nil
}

// GetTrip returns a trip to one of its participants. Drivers may also read any
// trip that is still open for acceptance.
func (s *Service) GetTrip(ctx context.Context, tripID string, caller identity.Principal) (*trip.Trip, error) {
	t, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.IsParticipant(caller.UserID) {
		return t, nil
	}
	if caller.Role == identity.RoleDriver && t.Status == trip.StatusRequested {
		return t, nil
	}
	return nil, apperrors.Unauthorized("trip belongs to another user")
}

// CanJoinTrip reports whether userID may subscribe to the trip's room.
func (s *Service) CanJoinTrip(ctx context.Context, userID, tripID string) (bool, error) {
	t, err := s.load(ctx, tripID)
	if err != nil {
		return false, err
	}
	return t.IsParticipant(userID), nil
}

// RiderHistory returns every trip of the rider, newest first.
func (s *Service) RiderHistory(ctx context.Context, riderID string) ([]*trip.Trip, error) {
	trips, err := s.trips.HistoryByRider(ctx, riderID)
	if err != nil {
		return nil, apperrors.Internal("failed to load trip history", err)
	}
	return trips, nil
}

// DriverHistory returns every trip the driver accepted, newest first.
func (s *Service) DriverHistory(ctx context.Context, driverID string) ([]*trip.Trip, error) {
	trips, err := s.trips.HistoryByDriver(ctx, driverID)
	if err != nil {
		return nil, apperrors.Internal("failed to load trip history", err)
	}
	return trips, nil
}

// UpdateDriverLocation stores the driver's position and relays it to the room of
// the trip they are serving.
func (s *Service) UpdateDriverLocation(ctx context.Context, driverID string, loc trip.Coordinate) error {
	if !loc.IsValid() {
		return apperrors.Validation("location coordinates are out of range", nil)
	}

	at := s.now()
	if err := s.drivers.UpdateLocation(ctx, driverID, loc, at); err != nil {
		if errors.Is(err, driver.ErrDriverNotFound) {
			return apperrors.Validation("driver is not registered", err)
		}
		return apperrors.Internal("failed to update driver location", err)
	}
	s.nr.RecordLocationUpdate()

	active, err := s.trips.ActiveByDriver(ctx, driverID)
	if err != nil {
		s.logger.Warn("Failed to look up driver trip for location relay", logger.String("driver_id", driverID), logger.Err(err))
		return nil
	}
	if active != nil {
		s.notifyLocation(active, driverID, loc, at)
	}
	return nil
}

// SetDriverStatus switches the driver online or offline.
func (s *Service) SetDriverStatus(ctx context.Context, driverID string, status driver.OnlineStatus) error {
	if !status.IsValid() {
		return apperrors.Validation("status must be ONLINE or OFFLINE", nil)
	}
	if err := s.drivers.UpdateStatus(ctx, driverID, status); err != nil {
		if errors.Is(err, driver.ErrDriverNotFound) {
			return apperrors.Validation("driver is not registered", err)
		}
		return apperrors.Internal("failed to update driver status", err)
	}
	s.logger.Info("Driver status changed", logger.String("driver_id", driverID), logger.String("status", string(status)))
	return nil
}

// Close stops accepting events and blocks until the queued ones are written.
// Transitions committed after Close are not logged.
func (s *Service) Close() {
	s.eventMu.Lock()
	if !s.eventClosed {
		s.eventClosed = true
		close(s.eventQueue)
	}
	s.eventMu.Unlock()
	<-s.eventDone
}

func (s *Service) load(ctx context.Context, tripID string) (*trip.Trip, error) {
	t, err := s.trips.Get(ctx, tripID)
	if errors.Is(err, trip.ErrTripNotFound) {
		return nil, apperrors.TripNotFound(tripID)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load trip", err)
	}
	return t, nil
}

// save persists t and translates store-level rule violations. A version conflict
// means another writer moved the trip first, so it is reported against the status
// that writer left behind.
func (s *Service) save(ctx context.Context, t *trip.Trip, attempted trip.Status) error {
	err := s.trips.Update(ctx, t)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, trip.ErrDriverHasActiveTrip):
		return apperrors.DriverBusy(t.AssignedDriver())
	case errors.Is(err, trip.ErrRiderHasActiveTrip):
		return apperrors.ConflictingActiveTrip(t.RiderID)
	case errors.Is(err, trip.ErrVersionConflict):
		fresh, loadErr := s.load(ctx, t.ID)
		if loadErr != nil {
			return loadErr
		}
		return apperrors.InvalidTransition(string(fresh.Status), string(attempted))
	case errors.Is(err, trip.ErrTripNotFound):
		return apperrors.TripNotFound(t.ID)
	}
	return apperrors.Internal("failed to save trip", err)
}

func transitionError(err error) error {
	var te *trip.TransitionError
	if errors.As(err, &te) {
		return apperrors.InvalidTransition(string(te.From), string(te.To))
	}
	return apperrors.Internal("unexpected transition failure", err)
}

// reject counts business-rule rejections by code before returning err.
func (s *Service) reject(operation string, err error) error {
	if appErr := apperrors.GetAppError(err); appErr.Status < 500 {
		monitoring.TripRejections.WithLabelValues(operation, appErr.Code).Inc()
	}
	return err
}

func (s *Service) driverSummary(ctx context.Context, driverID string) *driver.Summary {
	d, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		s.logger.Warn("Driver record unavailable for notification", logger.String("driver_id", driverID), logger.Err(err))
		return &driver.Summary{ID: driverID}
	}
	summary := d.Summary()
	return &summary
}

// committed records a persisted transition and queues it for the event log. It
// never blocks the caller.
func (s *Service) committed(t *trip.Trip, eventType string) {
	monitoring.TripTransitions.WithLabelValues(string(t.Status)).Inc()

	event := events.TripEvent{
		Type:          eventType,
		TripID:        t.ID,
		RiderID:       t.RiderID,
		DriverID:      t.AssignedDriver(),
		Status:        string(t.Status),
		Fare:          t.Fare,
		PaymentMethod: string(t.PaymentMethod),
		CancelledBy:   t.CancelledBy,
		OccurredAt:    s.now(),
	}

	s.eventMu.RLock()
	defer s.eventMu.RUnlock()
	if s.eventClosed {
		s.logger.Warn("Event log closed, dropping trip event",
			logger.String("trip_id", event.TripID),
			logger.String("type", event.Type),
		)
		return
	}
	select {
	case s.eventQueue <- event:
	default:
		s.logger.Warn("Event log queue full, dropping trip event",
			logger.String("trip_id", event.TripID),
			logger.String("type", event.Type),
		)
	}
}

func (s *Service) publishEvents() {
	defer close(s.eventDone)
	for event := range s.eventQueue {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish trip event",
				logger.String("trip_id", event.TripID),
				logger.String("type", event.Type),
				logger.Err(err),
			)
		}
		cancel()
	}
}
