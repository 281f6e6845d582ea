package checkout

import (
	"context"
	"io"
	"strconv"

	"github.com/fafportal/checkout/internal/backend"
	"github.com/fafportal/checkout/internal/cart"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
	"github.com/fafportal/checkout/pkg/format"
	"github.com/fafportal/checkout/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	messageLoginRequired  = "log in to purchase"
	messageNothingToOrder = "nothing left to purchase"
	messageUnavailable    = "purchase details are temporarily unavailable"
)

// Backend is the read side of the portal contract used to rebuild purchase pages.
type Backend interface {
	ListCart(ctx context.Context) ([]backend.CartRow, error)
	ProductDetail(ctx context.Context, productID int64) (*backend.Product, error)
	Session(ctx context.Context) (*backend.Session, error)
}

type ServiceParams struct {
	Backend  Backend
	Logger   *logger.Logger
	Language string
}

// Service rebuilds purchase intents from URL addresses and evaluates the gate.
type Service struct {
	backend Backend
	logg    *logger.Logger
	lang    string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout backend is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "checkout", Output: io.Discard})
	}
	return &Service{backend: params.Backend, logg: logg, lang: params.Language}, nil
}

// Page is everything the Purchase page renders. Settlement is only meaningful when
// Decision.Allowed is true.
type Page struct {
	Ref        PurchaseRef
	Intent     Intent
	Session    backend.Session
	Balance    Balance
	Decision   Decision
	Settlement Settlement
}

// Prepare refetches line detail and the session balance concurrently and rebuilds the intent
// addressed by ref. Fetch failures degrade to a page that cannot settle; an unknown product
// is an error.
func (s *Service) Prepare(ctx context.Context, ref PurchaseRef) (*Page, error) {
	var (
		intent      Intent
		session     backend.Session
		linesFailed bool
		sessionErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		built, err := s.buildIntent(gctx, ref)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				return err
			}
			s.logg.Error(gctx, "checkout.prepare.lines_failed", err)
			linesFailed = true
			built = Intent{Kind: ref.Kind, ReferenceID: referenceOf(ref)}
		}
		intent = built
		return nil
	})
	g.Go(func() error {
		resp, err := s.backend.Session(gctx)
		if err != nil {
			sessionErr = err
			return nil
		}
		session = *resp
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if sessionErr != nil {
		s.logg.Error(ctx, "checkout.prepare.session_failed", sessionErr)
	}

	balance := Balance{Available: session.PointBalance}
	page := &Page{
		Ref:        ref,
		Intent:     intent,
		Session:    session,
		Balance:    balance,
		Settlement: intent.Settlement(),
	}

	switch {
	case linesFailed || sessionErr != nil:
		page.Decision = Decision{Message: format.Message(s.lang, messageUnavailable)}
	case !session.Authenticated:
		page.Decision = Decision{Message: format.Message(s.lang, messageLoginRequired)}
	case len(intent.Lines) == 0:
		page.Decision = Decision{Message: format.Message(s.lang, messageNothingToOrder)}
	default:
		page.Decision = Evaluate(intent, balance, s.lang)
	}
	return page, nil
}

// Product fetches catalog detail for the product page.
func (s *Service) Product(ctx context.Context, productID int64) (*backend.Product, error) {
	return s.backend.ProductDetail(ctx, productID)
}

// BuyNow builds a direct purchase intent from a fresh catalog read.
func (s *Service) BuyNow(ctx context.Context, productID int64) (Intent, error) {
	product, err := s.backend.ProductDetail(ctx, productID)
	if err != nil {
		return Intent{}, err
	}
	return FromProduct(*product)
}

// Balance returns the current session balance.
func (s *Service) Balance(ctx context.Context) (Balance, error) {
	session, err := s.backend.Session(ctx)
	if err != nil {
		return Balance{}, err
	}
	if !session.Authenticated {
		return Balance{}, pkgerrors.New(pkgerrors.CodeUnauthorized, messageLoginRequired)
	}
	return Balance{Available: session.PointBalance}, nil
}

func (s *Service) buildIntent(ctx context.Context, ref PurchaseRef) (Intent, error) {
	switch ref.Kind {
	case KindProduct:
		product, err := s.backend.ProductDetail(ctx, ref.ProductID)
		if err != nil {
			return Intent{}, err
		}
		return FromProduct(*product)
	case KindCart:
		rows, err := s.backend.ListCart(ctx)
		if err != nil {
			return Intent{}, err
		}
		selected, err := SelectByMarker(cart.MergeRows(rows), ref.CartMarker)
		if err != nil {
			return Intent{}, err
		}
		lines := make([]Line, 0, len(selected))
		for _, l := range selected {
			lines = append(lines, Line{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				UnitPrice: l.UnitPrice,
				Title:     l.Title,
				Author:    l.Author,
				Publisher: l.Publisher,
				CoverRef:  l.CoverRef,
			})
		}
		return newIntent(KindCart, ref.CartMarker, lines), nil
	default:
		return Intent{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown purchase kind")
	}
}

func referenceOf(ref PurchaseRef) string {
	if ref.Kind == KindProduct {
		return strconv.FormatInt(ref.ProductID, 10)
	}
	return ref.CartMarker
}
