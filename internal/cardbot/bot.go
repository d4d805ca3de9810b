// Package cardbot drives the card service REST API with generated
// registrations so the dashboard and socket feed have live traffic.
package cardbot

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	log "github.com/sirupsen/logrus"
)

var firstNames = []string{
	"Ali", "Ayesha", "Bilal", "Fatima", "Hamza", "Hina", "Imran", "Kiran",
	"Usman", "Sana", "Zain", "Mariam", "Faisal", "Nadia", "Tariq",
}

var lastNames = []string{"Khan", "Ahmed", "Malik", "Qureshi", "Siddiqui", "Butt", "Raza", "Shah"}

var cities = map[string][]string{
	"Punjab":      {"Lahore", "Faisalabad", "Multan", "Rawalpindi"},
	"Sindh":       {"Karachi", "Hyderabad", "Sukkur"},
	"KPK":         {"Peshawar", "Mardan", "Abbottabad"},
	"Balochistan": {"Quetta", "Gwadar"},
}

var (
	genders     = []string{"male", "female", "other"}
	religions   = []string{"Islam", "Christianity", "Hinduism", "Sikhism"}
	marital     = []string{"single", "married", "divorced", "widowed"}
	bloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	professions = []string{"Engineer", "Teacher", "Doctor", "Farmer", "Accountant", "Driver", ""}
)

type Config struct {
	BaseURL  string
	Email    string
	Password string
	Interval time.Duration
	Count    int // registrations before stopping, 0 runs until cancelled
	Seed     int64
}

type Bot struct {
	cfg    Config
	client *http.Client
	rnd    *rand.Rand
	now    func() time.Time

	mu      sync.Mutex
	token   string
	created []string // ids of cards this bot registered and has not deleted
}

func New(cfg Config) *Bot {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Bot{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		rnd:    rand.New(rand.NewSource(seed)),
		now:    time.Now,
	}
}

type envelope struct {
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (b *Bot) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(b.cfg.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	b.mu.Lock()
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	b.mu.Unlock()

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	env := envelope{}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: undecodable response (status %d): %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("card service answered %d: %s", e.Status, e.Message)
}

// Login exchanges the admin credential for a bearer token.
func (b *Bot) Login(ctx context.Context) error {
	res := struct {
		Token string `json:"token"`
	}{}
	err := b.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    b.cfg.Email,
		"password": b.cfg.Password,
	}, &res)
	if err != nil {
		return err
	}
	if res.Token == "" {
		return fmt.Errorf("login returned no token")
	}

	b.mu.Lock()
	b.token = res.Token
	b.mu.Unlock()
	return nil
}

func (b *Bot) pick(list []string) string {
	return list[b.rnd.Intn(len(list))]
}

// NewCard generates a valid registration for an adult.
func (b *Bot) NewCard() *models.CardInput {
	province := b.pick([]string{"Punjab", "Sindh", "KPK", "Balochistan"})
	last := b.pick(lastNames)

	cnic := make([]byte, 13)
	for i := range cnic {
		cnic[i] = byte('0' + b.rnd.Intn(10))
	}
	cnic[0] = byte('1' + b.rnd.Intn(9))

	age := 18 + b.rnd.Intn(60)
	dob := b.now().AddDate(-age, 0, -b.rnd.Intn(365)-1)

	return &models.CardInput{
		Name:          b.pick(firstNames) + " " + last,
		FatherName:    b.pick(firstNames) + " " + last,
		CNIC:          fmt.Sprintf("%s-%s-%s", cnic[:5], cnic[5:12], cnic[12:]),
		DOB:           dob.Format("2006-01-02"),
		Address:       fmt.Sprintf("House %d, Street %d, %s", 1+b.rnd.Intn(500), 1+b.rnd.Intn(40), province),
		Gender:        b.pick(genders),
		Religion:      b.pick(religions),
		BloodGroup:    b.pick(bloodGroups),
		MaritalStatus: b.pick(marital),
		Profession:    b.pick(professions),
		Province:      province,
		City:          b.pick(cities[province]),
		Photo:         b.photo(),
	}
}

// photo renders a small single colour PNG as a data URI.
func (b *Bot) photo() string {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	c := color.RGBA{uint8(b.rnd.Intn(256)), uint8(b.rnd.Intn(256)), uint8(b.rnd.Intn(256)), 255}
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// Register creates one generated card and remembers its id.
func (b *Bot) Register(ctx context.Context) (*models.Card, error) {
	card := &models.Card{}
	if err := b.do(ctx, http.MethodPost, "/api/cards", b.NewCard(), card); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.created = append(b.created, card.ID.Hex())
	b.mu.Unlock()
	return card, nil
}

// Touch updates or deletes one of the cards this bot registered. It reports
// false when there is nothing to touch.
func (b *Bot) Touch(ctx context.Context) (bool, error) {
	b.mu.Lock()
	if len(b.created) == 0 {
		b.mu.Unlock()
		return false, nil
	}
	i := b.rnd.Intn(len(b.created))
	id := b.created[i]
	remove := b.rnd.Intn(4) == 0
	if remove {
		b.created = append(b.created[:i], b.created[i+1:]...)
	}
	b.mu.Unlock()

	if remove {
		return true, b.do(ctx, http.MethodDelete, "/api/cards/"+id, nil, nil)
	}

	address := fmt.Sprintf("House %d, Block %c", 1+b.rnd.Intn(900), 'A'+rune(b.rnd.Intn(6)))
	return true, b.do(ctx, http.MethodPut, "/api/cards/"+id, map[string]string{"address": address}, nil)
}

// Run registers a card every interval and now and then edits an earlier
// one, until ctx is done or Count registrations were made.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	log.Infof("card bot logged in to %s", b.cfg.BaseURL)

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	registered := 0
	for {
		select {
		case <-ctx.Done():
			log.Infof("card bot stopping after %d registrations", registered)
			return nil
		case <-ticker.C:
		}

		card, err := b.Register(ctx)
		var se *StatusError
		switch {
		case err == nil:
			registered++
			log.WithFields(log.Fields{"id": card.ID.Hex(), "cnic": card.CNIC}).Info("card registered")
		case errors.As(err, &se) && se.Status == http.StatusUnauthorized:
			log.Warn("token rejected, logging in again")
			if err := b.Login(ctx); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			continue
		default:
			log.Errorf("register card: %v", err)
		}

		if b.rnd.Intn(3) == 0 {
			if _, err := b.Touch(ctx); err != nil {
				log.Errorf("touch card: %v", err)
			}
		}

		if b.cfg.Count > 0 && registered >= b.cfg.Count {
			log.Infof("card bot finished %d registrations", registered)
			return nil
		}
	}
}
