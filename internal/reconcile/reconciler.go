// Package reconcile turns a reasoning-service draft into a complete invoice
// record, filling and coercing every field deterministically.
package reconcile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/facturaIA/invoice-extraction-service/internal/ai"
	"github.com/facturaIA/invoice-extraction-service/internal/errs"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// Defaults applied when the configuration leaves a field empty.
const (
	DefaultPlausibleMin = 50
	DefaultPlausibleMax = 1000000
	DefaultCurrency     = "MAD"
	DefaultOrigin       = "MAROC"
	DefaultUnit         = "PCS"
)

var (
	reInvoiceNumber = regexp.MustCompile(`[^\p{L}\p{N}_\-/]`)
	reDayFirstDate  = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})$`)
	reISODate       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	errWritten = errors.New("amount written in words")
)

// Reconciler applies the field rules. It holds no per-call state and is
// safe for concurrent use.
type Reconciler struct {
	min, max decimal.Decimal
	currency string
	origin   string
	unit     string
	log      *logrus.Entry
}

// New creates a Reconciler from cfg, filling zero values with defaults.
func New(cfg models.ReconcileConfig, log *logrus.Entry) *Reconciler {
	if cfg.PlausibleMin <= 0 {
		cfg.PlausibleMin = DefaultPlausibleMin
	}
	if cfg.PlausibleMax <= 0 {
		cfg.PlausibleMax = DefaultPlausibleMax
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = DefaultCurrency
	}
	if cfg.DefaultOrigin == "" {
		cfg.DefaultOrigin = DefaultOrigin
	}
	if cfg.DefaultUnit == "" {
		cfg.DefaultUnit = DefaultUnit
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reconciler{
		min:      decimal.NewFromFloat(cfg.PlausibleMin),
		max:      decimal.NewFromFloat(cfg.PlausibleMax),
		currency: cfg.DefaultCurrency,
		origin:   cfg.DefaultOrigin,
		unit:     cfg.DefaultUnit,
		log:      log.WithField("component", "reconcile"),
	}
}

// Reconcile never fails: a field that cannot be coerced is reset together
// with its group and logged.
func (r *Reconciler) Reconcile(draft ai.DraftRecord, cand models.FieldCandidates) models.InvoiceRecord {
	rec := models.InvoiceRecord{
		Number:   cleanNumber(draft.Number.String()),
		Date:     r.normalizeDate(draft.Date.String()),
		Currency: r.pickCurrency(draft.Currency, cand.Currencies),
	}

	best, haveBest := r.BestTotal(cand.Totals)

	written := false
	var err error
	if rec.NetWeight, err = amount(draft.NetWeight); err == nil {
		if rec.GrossWeight, err = amount(draft.GrossWeight); err == nil {
			rec.TotalValue, err = coerce(draft.TotalValue)
			if errors.Is(err, errWritten) {
				written, err = true, nil
				r.log.WithField("value", draft.TotalValue.String()).Info("total written in words, using candidates")
			}
		}
	}
	if err != nil {
		r.coercionFailed("header", err)
		rec.NetWeight, rec.GrossWeight, rec.TotalValue = decimal.Zero, decimal.Zero, decimal.Zero
	}

	if (written || rec.TotalValue.IsZero()) && haveBest {
		rec.TotalValue = best
		r.log.WithField("total", best.StringFixed(2)).Info("total taken from candidates")
	}

	rec.Items = make([]models.LineItem, len(draft.Items))
	for i, it := range draft.Items {
		rec.Items[i] = r.item(i, it)
	}
	distribute(rec.TotalValue, rec.Items)
	return rec
}

func (r *Reconciler) item(i int, it ai.DraftItem) models.LineItem {
	li := models.LineItem{
		PaymentFlag:        strings.TrimSpace(it.PaymentFlag.String()),
		ClassificationCode: strings.TrimSpace(it.ClassificationCode.String()),
		ArticleCode:        strings.TrimSpace(it.ArticleCode.String()),
		Description:        strings.TrimSpace(it.Description.String()),
		OriginCountry:      strings.TrimSpace(it.OriginCountry.String()),
		Unit:               strings.TrimSpace(it.Unit.String()),
		Quantity:           1,
	}
	if li.Description == "" {
		li.Description = fmt.Sprintf("Article %d", i+1)
	}
	if li.OriginCountry == "" {
		li.OriginCountry = r.origin
	}
	if li.Unit == "" {
		li.Unit = r.unit
	}

	var err error
	if li.Value, err = amount(it.Value); err == nil {
		if li.NetWeight, err = amount(it.NetWeight); err == nil {
			if li.GrossWeight, err = amount(it.GrossWeight); err == nil {
				li.Quantity, err = quantity(it.Quantity)
			}
		}
	}
	if err != nil {
		r.coercionFailed(fmt.Sprintf("item %d", i+1), err)
		li.Value, li.NetWeight, li.GrossWeight, li.Quantity = decimal.Zero, decimal.Zero, decimal.Zero, 1
	}
	return li
}

func (r *Reconciler) coercionFailed(group string, err error) {
	r.log.WithError(errs.New(errs.FieldCoercion, err)).WithField("group", group).Warn("field group reset")
}

// BestTotal returns the highest candidate inside the plausible range.
func (r *Reconciler) BestTotal(totals []string) (decimal.Decimal, bool) {
	best, found := decimal.Zero, false
	for _, t := range totals {
		v, ok := ParseAmount(t)
		if !ok || v.LessThan(r.min) || v.GreaterThan(r.max) {
			continue
		}
		if !found || v.GreaterThan(best) {
			best, found = v, true
		}
	}
	return best, found
}

func (r *Reconciler) pickCurrency(v ai.Value, candidates []string) string {
	if code, ok := NormalizeCurrency(v.String()); ok {
		return code
	}
	raw := strings.ToUpper(strings.TrimSpace(v.String()))
	if reCurrencyCode.MatchString(raw) {
		return raw
	}
	for _, c := range candidates {
		if code, ok := NormalizeCurrency(c); ok {
			return code
		}
	}
	return r.currency
}

// normalizeDate turns day-first dates into YYYY-MM-DD; anything else is
// kept as given.
func (r *Reconciler) normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || reISODate.MatchString(s) {
		return s
	}
	if m := reDayFirstDate.FindStringSubmatch(s); m != nil {
		return m[3] + "-" + pad(m[2]) + "-" + pad(m[1])
	}
	r.log.WithField("date", s).Warn("unrecognised date format")
	return s
}

func pad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func cleanNumber(s string) string {
	return reInvoiceNumber.ReplaceAllString(strings.TrimSpace(s), "")
}

// coerce converts a draft value to a non-negative decimal. Missing values
// and text without digits are zero.
func coerce(v ai.Value) (decimal.Decimal, error) {
	switch v.Kind {
	case ai.Number:
		d, err := decimal.NewFromString(v.Raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("number %q: %w", v.Raw, err)
		}
		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("negative value %s", v.Raw)
		}
		return d, nil
	case ai.Text:
		if IsWrittenAmount(v.Raw) {
			return decimal.Zero, errWritten
		}
		d, _ := ParseAmount(v.Raw)
		return d, nil
	default:
		return decimal.Zero, nil
	}
}

// amount is coerce with written-out text read as zero.
func amount(v ai.Value) (decimal.Decimal, error) {
	d, err := coerce(v)
	if errors.Is(err, errWritten) {
		return decimal.Zero, nil
	}
	return d, err
}

func quantity(v ai.Value) (int, error) {
	d, err := amount(v)
	if err != nil {
		return 1, err
	}
	q := int(d.IntPart())
	if q <= 0 {
		q = 1
	}
	return q, nil
}

// distribute fills zero item values from the header total: a lone item
// takes the whole total; when every item is zero the total is split evenly
// to the cent and the last item absorbs the remainder.
func distribute(total decimal.Decimal, items []models.LineItem) {
	if !total.IsPositive() || len(items) == 0 {
		return
	}
	for _, it := range items {
		if !it.Value.IsZero() {
			return
		}
	}
	n := decimal.NewFromInt(int64(len(items)))
	share := total.Div(n).Truncate(2)
	for i := range items {
		items[i].Value = share
	}
	items[len(items)-1].Value = total.Sub(share.Mul(decimal.NewFromInt(int64(len(items) - 1))))
}
