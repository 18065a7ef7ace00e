package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"bpark-backend/internal/authz"
	"bpark-backend/internal/model"
	"bpark-backend/internal/parking"
	"bpark-backend/internal/parse"
	"bpark-backend/internal/session"
)

// Engine is the allocation engine as seen by the dispatcher.
type Engine interface {
	Authenticate(ctx context.Context, email, password string) (*model.Subscriber, error)
	CreateSubscriber(ctx context.Context, in parking.NewSubscriber) (parking.Result, error)
	EditSubscriber(ctx context.Context, id int64, email, phone, password string) (parking.Result, error)
	Recover(ctx context.Context, id int64) (parking.Result, error)
	UserHistory(ctx context.Context, id int64) (parking.Result, error)
	DepositVehicle(ctx context.Context, subscriberID, orderNumber int64) (parking.Result, error)
	Pickup(ctx context.Context, subscriberID int64, code int) (parking.Result, error)
	Extend(ctx context.Context, subscriberID int64, code int) (parking.Result, error)
	Reserve(ctx context.Context, subscriberID int64, when time.Time) (parking.Result, error)
	CurrentParking(ctx context.Context) (parking.Result, error)
	Report(ctx context.Context, kind model.ReportType, year, month int) (parking.Result, error)
	Location() *time.Location
}

// peer is the per-connection state seen by handlers.
type peer struct {
	conn session.Conn
	user *model.Subscriber
}

func (p *peer) role() string {
	if p.user == nil {
		return authz.RoleAnonymous
	}
	return string(p.user.Role)
}

type handlerFunc func(ctx context.Context, p *peer, req Packet) (parking.Result, error)

// errLoggedOut tells the connection loop to stop without replying.
var errLoggedOut = errors.New("logged out")

// Server dispatches packets from every connection to the engine.
type Server struct {
	engine   Engine
	sessions *session.Registry
	authz    *authz.Authorizer
	timeout  time.Duration
	handlers map[string]handlerFunc

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewServer builds the dispatch table. Each request gets at most timeout to complete.
func NewServer(engine Engine, sessions *session.Registry, authorizer *authz.Authorizer, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &Server{
		engine:   engine,
		sessions: sessions,
		authz:    authorizer,
		timeout:  timeout,
		conns:    make(map[*Conn]struct{}),
	}
	s.handlers = map[string]handlerFunc{
		CommandLogin:          s.login,
		CommandLogout:         s.logout,
		CommandCreate:         s.create,
		CommandCurrentParking: s.currentParking,
		CommandReport:         s.report,
		CommandDeposit:        s.deposit,
		CommandPickup:         s.pickup,
		CommandExtend:         s.extend,
		CommandReserve:        s.reserve,
		CommandEditUser:       s.editUser,
		CommandUserHistory:    s.userHistory,
		CommandRecover:        s.recover,
	}
	return s
}

// Shutdown pushes a SHUTDOWN notice to every open connection, logged in or
// not, and closes it. ServeConn loops on those connections then return.
func (s *Server) Shutdown(description string) int {
	s.sessions.Terminate()

	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.Notify(CommandShutdown, description); err != nil {
			log.WithError(err).WithField("remote", c.RemoteAddr()).Debug("Failed to push shutdown notice")
		}
		_ = c.Close()
	}
	log.WithField("connections", len(conns)).Info("Pushed shutdown notice")
	return len(conns)
}

// ServeConn reads requests from conn until it closes or ctx ends. Requests
// on one connection are handled in order.
func (s *Server) ServeConn(ctx context.Context, conn *Conn) {
	p := &peer{conn: conn}
	remote := conn.RemoteAddr()
	log.WithField("remote", remote).Debug("Connection opened")

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		if p.user != nil {
			s.sessions.Unregister(p.user.ID, conn)
		}
		_ = conn.Close()
		log.WithField("remote", remote).Debug("Connection closed")
	}()

	for {
		req, err := conn.ReadPacket()
		if err != nil {
			return
		}
		resp, ok := s.handle(ctx, p, req)
		if !ok {
			return
		}
		if err := conn.WritePacket(resp); err != nil {
			log.WithError(err).WithField("remote", remote).Warn("Failed to write response")
			return
		}
	}
}

// handle runs one request and builds its response. It returns false when the
// connection must be closed without a reply.
func (s *Server) handle(ctx context.Context, p *peer, req Packet) (Packet, bool) {
	resp := Packet{ID: req.ID, Command: req.Command}
	h, ok := s.handlers[req.Command]
	if !ok {
		resp.Answer = parking.StatusNotFound
		resp.Description = "Unrecognized command"
		resp.Args = map[string]string{"error": fmt.Sprintf("unknown command %q", req.Command)}
		return resp, true
	}

	allowed, err := s.authz.Allowed(p.role(), req.Command)
	if err != nil {
		return failure(resp, err), true
	}
	if !allowed {
		if p.user == nil {
			resp.Answer, resp.Description = parking.StatusUnauthorized, "Please log in first."
		} else {
			resp.Answer, resp.Description = parking.StatusForbidden, "Permission denied."
		}
		return resp, true
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := h(reqCtx, p, req)
	switch {
	case errors.Is(err, errLoggedOut):
		return Packet{}, false
	case errors.Is(err, parse.ErrInvalid):
		resp.Answer, resp.Description = parking.StatusBadRequest, err.Error()
		return resp, true
	case errors.Is(err, context.DeadlineExceeded):
		resp.Answer, resp.Description = parking.StatusTimeout, "Request timed out."
		return resp, true
	case err != nil:
		log.WithError(err).WithField("command", req.Command).Error("Command failed")
		return failure(resp, err), true
	}

	resp.Answer = res.Code
	resp.Description = res.Description
	resp.Args = res.Args
	resp.Table = res.Table
	return resp, true
}

func failure(resp Packet, err error) Packet {
	resp.Answer = parking.StatusUnavailable
	resp.Description = "Service unavailable, please try again later."
	resp.Args = map[string]string{"error": err.Error()}
	return resp
}

func missing(req Packet, keys ...string) error {
	var absent []string
	for _, k := range keys {
		if req.Arg(k) == "" {
			absent = append(absent, k)
		}
	}
	if len(absent) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", parse.ErrInvalid, strings.Join(absent, ", "))
}

// target resolves the subscriber a request acts on. It defaults to the caller.
func target(p *peer, req Packet, key string) (int64, bool, error) {
	id := p.user.ID
	if raw := req.Arg(key); raw != "" {
		var err error
		if id, err = parse.ID(key, raw); err != nil {
			return 0, false, err
		}
	}
	return id, authz.CanActFor(p.user.Role, p.user.ID, id), nil
}

func denied() parking.Result {
	return parking.Result{Code: parking.StatusForbidden, Description: "You may only act on your own account."}
}

func (s *Server) login(ctx context.Context, p *peer, req Packet) (parking.Result, error) {
	if err := missing(req, "subscriber_email", "subscriber_password"); err != nil {
		return parking.Result{}, err
	}
	if p.user != nil {
		return parking.Result{Code: parking.StatusForbidden, Description: "User already logged in."}, nil
	}
	email, err := parse.Email(req.Arg("subscriber_email"))
	if err != nil {
		return parking.Result{}, err
	}
	sub, err := s.engine.Authenticate(ctx, email, req.Args["subscriber_password"])
	if errors.Is(err, parking.ErrInvalidCredentials) {
		return parking.Result{Code: parking.StatusUnauthorized, Description: "Invalid email or password."}, nil
	}
	if err != nil {
		return parking.Result{}, err
	}
	if err := s.sessions.Register(sub.ID, p.conn, parse.Flag(req.Arg("force_login"))); err != nil {
		if errors.Is(err, session.ErrAlreadyLoggedIn) {
			return parking.Result{Code: parking.StatusForbidden, Description: "User already logged in."}, nil
		}
		return parking.Result{}, err
	}
	p.user = sub
	log.WithFields(log.Fields{"subscriber": sub.ID, "remote": p.conn.RemoteAddr()}).Info("Subscriber logged in")
	return parking.Result{
		Code:        parking.StatusOK,
		Description: "Login successful.",
		Args: map[string]string{
			"subscriber_id":    strconv.FormatInt(sub.ID, 10),
			"subscriber_name":  sub.Name,
			"subscriber_email": sub.Email,
			"subscriber_phone": sub.Phone,
			"subscriber_role":  string(sub.Role),
		},
	}, nil
}

func (s *Server) logout(_ context.Context, p *peer, _ Packet) (parking.Result, error) {
	s.sessions.Unregister(p.user.ID, p.conn)
	p.user = nil
	return parking.Result{}, errLoggedOut
}

func (s *Server) create(ctx context.Context, _ *peer, req Packet) (parking.Result, error) {
	if err := missing(req, "name", "email", "password", "phone"); err != nil {
		return parking.Result{}, err
	}
	email, err := parse.Email(req.Arg("email"))
	if err != nil {
		return parking.Result{}, err
	}
	phone, err := parse.Phone(req.Arg("phone"))
	if err != nil {
		return parking.Result{}, err
	}
	return s.engine.CreateSubscriber(ctx, parking.NewSubscriber{
		Name:     req.Arg("name"),
		Email:    email,
		Phone:    phone,
		Password: req.Args["password"],
	})
}

func (s *Server) currentParking(ctx context.Context, _ *peer, _ Packet) (parking.Result, error) {
	return s.engine.CurrentParking(ctx)
}

func (s *Server) report(ctx context.Context, _ *peer, req Packet) (parking.Result, error) {
	if err := missing(req, "report_type", "report_month", "report_year"); err != nil {
		return parking.Result{}, err
	}
	kind := model.ReportType(strings.ToUpper(req.Arg("report_type")))
	if kind != model.ReportUsers && kind != model.ReportParking {
		return parking.Result{}, fmt.Errorf("%w report_type: %q", parse.ErrInvalid, req.Arg("report_type"))
	}
	month, err := parse.Month(req.Arg("report_month"))
	if err != nil {
		return parking.Result{}, err
	}
	year, err := parse.Year(req.Arg("report_year"))
	if err != nil {
		return parking.Result{}, err
	}
	return s.engine.Report(ctx, kind, year, month)
}

func (s *Server) deposit(ctx context.Context, p *peer, req Packet) (parking.Result, error) {
	id, ok, err := target(p, req, "subscriber_id")
	if err != nil || !ok {
		return denied(), err
	}
	var orderNumber int64
	if raw := req.Arg("order_number"); raw != "" {
		if orderNumber, err = parse.ID("order_number", raw); err != nil {
			return parking.Result{}, err
		}
	}
	return s.engine.DepositVehicle(ctx, id, orderNumber)
}

func (s *Server) pickup(ctx context.Context, p *peer, req Packet) (parking.Result, error) {
	id, code, err := s.codeRequest(p, req)
	if err != nil || id == 0 {
		return denied(), err
	}
	return s.engine.Pickup(ctx, id, code)
}

func (s *Server) extend(ctx context.Context, p *peer, req Packet) (parking.Result, error) {
	id, code, err := s.codeRequest(p, req)
	if err != nil || id == 0 {
		return denied(), err
	}
	return s.engine.Extend(ctx, id, code)
}

// codeRequest reads the subscriber and confirmation code of a pickup or
// extend. A zero id means the caller may not act for that subscriber.
func (s *Server) codeRequest(p *peer, req Packet) (int64, int, error) {
	if err := missing(req, "parking_confirmation_code"); err != nil {
		return 0, 0, err
	}
	id, ok, err := target(p, req, "subscriber_id")
	if err != nil || !ok {
		return 0, 0, err
	}
	code, err := parse.ConfirmationCode(req.Arg("parking_confirmation_code"))
	if err != nil {
		return 0, 0, err
	}
	return id, code, nil
}

func (s *Server) reserve(ctx context.Context, p *peer, req Packet) (parking.Result, error) {
	if err := missing(req, "order_date", "order_time"); err != nil {
		return parking.Result{}, err
	}
	id, ok, err := target(p, req, "subscriber_id")
	if err != nil || !ok {
		return denied(), err
	}
	when, err := parse.DateTime(req.Arg("order_date"), req.Arg("order_time"), s.engine.Location())
	if err != nil {
		return parking.Result{}, err
	}
	return s.engine.Reserve(ctx, id, when)
}

func (s *Server) editUser(ctx context.Context, p *peer, req Packet) (parking.Result, error) {
	if err := missing(req, "email", "password", "phone"); err != nil {
		return parking.Result{}, err
	}
	id, ok, err := target(p, req, "user_id")
	if err != nil || !ok {
		return denied(), err
	}
	email, err := parse.Email(req.Arg("email"))
	if err != nil {
		return parking.Result{}, err
	}
	phone, err := parse.Phone(req.Arg("phone"))
	if err != nil {
		return parking.Result{}, err
	}
	return s.engine.EditSubscriber(ctx, id, email, phone, req.Args["password"])
}

func (s *Server) userHistory(ctx context.Context, p *peer, req Packet) (parking.Result, error) {
	id, ok, err := target(p, req, "subscriber_id")
	if err != nil || !ok {
		return denied(), err
	}
	return s.engine.UserHistory(ctx, id)
}

func (s *Server) recover(ctx context.Context, p *peer, req Packet) (parking.Result, error) {
	id, ok, err := target(p, req, "subscriber_id")
	if err != nil || !ok {
		return denied(), err
	}
	return s.engine.Recover(ctx, id)
}
