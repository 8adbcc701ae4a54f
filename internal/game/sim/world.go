package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"acolyte/internal/game"
	"acolyte/internal/logging"
	"acolyte/internal/state"
)

type situation struct {
	def       SituationDef
	state     state.SituationState
	recipe    *RecipeDef
	remaining int
	slots     []string
	slotted   map[string]state.Card
	held      []state.Card
	output    []state.Card
	open      bool
	choosing  bool
}

// World is a simulated game. It is safe for concurrent use.
type World struct {
	mu sync.Mutex

	paused     bool
	table      map[string]state.Card
	situations map[string]*situation
	recipes    map[string]*RecipeDef
	bySit      map[string][]*RecipeDef
	mansus     *state.Mansus

	seq     int
	beat    uint64
	tidies  int
	calls   []string
	faults  map[string]error
	latency time.Duration
}

var _ game.Game = (*World)(nil)
var _ game.Clock = (*World)(nil)

// New builds a world from its definition.
func New(def Definition) *World {
	w := &World{
		paused:     def.Paused,
		table:      make(map[string]state.Card),
		situations: make(map[string]*situation),
		recipes:    make(map[string]*RecipeDef),
		bySit:      make(map[string][]*RecipeDef),
		faults:     make(map[string]error),
	}
	for _, c := range def.Cards {
		w.table[c.ID] = cardOf(c)
	}
	for _, s := range def.Situations {
		w.situations[s.ID] = &situation{
			def:     s,
			state:   state.SituationIdle,
			slots:   append([]string(nil), s.Slots...),
			slotted: make(map[string]state.Card),
		}
	}
	for i := range def.Recipes {
		r := &def.Recipes[i]
		w.recipes[r.ID] = r
		w.bySit[r.Situation] = append(w.bySit[r.Situation], r)
	}
	return w
}

func cardOf(c CardDef) state.Card {
	aspects := make(map[string]int, len(c.Aspects))
	for k, v := range c.Aspects {
		aspects[k] = v
	}
	return state.Card{ID: c.ID, Element: c.Element, Aspects: aspects, Lifetime: c.Lifetime}
}

// Pause stops the game; snapshots report it as not running.
func (w *World) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = true
}

// Resume restarts the game.
func (w *World) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = false
}

// SetLatency makes every action wait d before taking effect.
func (w *World) SetLatency(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latency = d
}

// Inject makes the next call to action fail with err. Actions are named
// open, slot, start, conclude, close, mansus and tidy.
func (w *World) Inject(action string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.faults[action] = err
}

// Calls returns the log of successful actions.
func (w *World) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

// Tidies returns how many times Tidy ran.
func (w *World) Tidies() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tidies
}

// Beat returns how many times the world advanced.
func (w *World) Beat() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.beat
}

// AddCard puts a card on the table, as an outside actor would.
func (w *World) AddCard(c CardDef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.table[c.ID] = cardOf(c)
}

// RemoveCard takes a card off the table, as an outside actor would.
func (w *World) RemoveCard(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.table, id)
}

// Snapshot implements game.World.
func (w *World) Snapshot(ctx context.Context) (*state.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	cards := make([]state.Card, 0, len(w.table))
	for _, c := range w.table {
		cards = append(cards, c)
	}
	situations := make([]state.Situation, 0, len(w.situations))
	for _, s := range w.situations {
		situations = append(situations, s.view())
	}
	return state.New(!w.paused, cards, situations, w.mansus), nil
}

func (s *situation) view() state.Situation {
	v := state.Situation{
		ID:            s.def.ID,
		State:         s.state,
		TimeRemaining: s.remaining,
		Output:        s.output,
	}
	if s.recipe != nil {
		v.Recipe = s.recipe.ID
	}
	for _, id := range s.slots {
		v.Slots = append(v.Slots, state.Slot{ID: id, Card: s.slotted[id].ID})
	}
	return v
}

// Advance moves time forward one beat.
func (w *World) Advance() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused {
		return
	}
	w.beat++

	for id, c := range w.table {
		if c.Lifetime == 0 {
			continue
		}
		c.Lifetime--
		if c.Lifetime == 0 {
			delete(w.table, id)
			logging.WorldDebug("sim: %s decayed", id)
			continue
		}
		w.table[id] = c
	}

	for _, id := range w.situationIDs() {
		s := w.situations[id]
		if s.state != state.SituationOngoing || s.choosing {
			continue
		}
		if s.remaining > 0 {
			s.remaining--
		}
		if s.remaining == 0 {
			w.finish(s)
		}
	}
}

func (w *World) situationIDs() []string {
	ids := make([]string, 0, len(w.situations))
	for id := range w.situations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// finish ends the running recipe of s, opening a mansus choice first if the
// recipe offers one.
func (w *World) finish(s *situation) {
	r := s.recipe
	for _, id := range s.slots {
		if c, ok := s.slotted[id]; ok {
			s.held = append(s.held, c)
		}
	}
	s.slotted = make(map[string]state.Card)

	if len(r.Mansus) > 0 && !s.choosing {
		if w.mansus == nil {
			s.choosing = true
			s.slots = nil
			w.mansus = &state.Mansus{Situation: s.def.ID, Faces: append([]string(nil), r.Mansus...)}
		}
		return
	}
	w.resolve(s)
}

func (w *World) resolve(s *situation) {
	r := s.recipe
	s.choosing = false
	for _, p := range r.Produces {
		s.output = append(s.output, w.newCard(p))
	}
	if !r.Consumes {
		s.output = append(s.output, s.held...)
	}
	s.held = nil

	if r.Next != "" {
		next := w.recipes[r.Next]
		s.recipe = next
		s.remaining = next.Duration
		s.slots = append([]string(nil), next.Slots...)
		logging.WorldDebug("sim: %s continues with %s", s.def.ID, next.ID)
		return
	}
	s.state = state.SituationComplete
	s.remaining = 0
	s.slots = nil
	logging.WorldDebug("sim: %s completed %s", s.def.ID, r.ID)
}

func (w *World) newCard(def CardDef) state.Card {
	w.seq++
	c := cardOf(def)
	if c.ID == "" {
		c.ID = fmt.Sprintf("%s-%d", c.Element, w.seq)
	}
	return c
}

// act runs the common preamble of every action: latency, pause and injected
// faults. It returns with w.mu held when err is nil.
func (w *World) act(ctx context.Context, action string) error {
	w.mu.Lock()
	latency := w.latency
	w.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	if w.paused {
		w.mu.Unlock()
		return game.ErrNotRunning
	}
	if err, ok := w.faults[action]; ok {
		delete(w.faults, action)
		w.mu.Unlock()
		return err
	}
	return nil
}

func (w *World) lookup(id string) (*situation, error) {
	s, ok := w.situations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", game.ErrUnknownSituation, id)
	}
	return s, nil
}

func (w *World) openSituation(id string) (*situation, error) {
	s, err := w.lookup(id)
	if err != nil {
		return nil, err
	}
	if !s.open {
		return nil, fmt.Errorf("%w: %s", game.ErrSituationClosed, id)
	}
	return s, nil
}

func (w *World) OpenSituation(ctx context.Context, id string) error {
	if err := w.act(ctx, "open"); err != nil {
		return err
	}
	defer w.mu.Unlock()
	s, err := w.lookup(id)
	if err != nil {
		return err
	}
	s.open = true
	w.calls = append(w.calls, "open "+id)
	return nil
}

func (w *World) CloseSituation(ctx context.Context, id string) error {
	if err := w.act(ctx, "close"); err != nil {
		return err
	}
	defer w.mu.Unlock()
	s, err := w.lookup(id)
	if err != nil {
		return err
	}
	s.open = false
	w.calls = append(w.calls, "close "+id)
	return nil
}

func (w *World) SlotCard(ctx context.Context, id, slot, card string) error {
	if err := w.act(ctx, "slot"); err != nil {
		return err
	}
	defer w.mu.Unlock()
	s, err := w.openSituation(id)
	if err != nil {
		return err
	}
	if s.state == state.SituationComplete || s.choosing {
		return fmt.Errorf("%w: %s is %s", game.ErrSituationBusy, id, s.state)
	}
	if !contains(s.slots, slot) {
		return fmt.Errorf("%w: %s/%s", game.ErrUnknownSlot, id, slot)
	}
	if _, taken := s.slotted[slot]; taken {
		return fmt.Errorf("%w: %s/%s", game.ErrSlotOccupied, id, slot)
	}
	c, ok := w.table[card]
	if !ok {
		return fmt.Errorf("%w: %s", game.ErrCardUnavailable, card)
	}
	delete(w.table, card)
	s.slotted[slot] = c
	w.calls = append(w.calls, fmt.Sprintf("slot %s/%s %s", id, slot, card))
	return nil
}

func (w *World) StartSituation(ctx context.Context, id string) error {
	if err := w.act(ctx, "start"); err != nil {
		return err
	}
	defer w.mu.Unlock()
	s, err := w.openSituation(id)
	if err != nil {
		return err
	}
	if s.state != state.SituationIdle {
		return fmt.Errorf("%w: %s is %s", game.ErrSituationBusy, id, s.state)
	}

	totals := make(map[string]int)
	for _, c := range s.slotted {
		totals[c.Element]++
		for k, v := range c.Aspects {
			totals[k] += v
		}
	}
	var recipe *RecipeDef
	for _, r := range w.bySit[id] {
		if satisfies(totals, r.Requires) {
			recipe = r
			break
		}
	}
	if recipe == nil || len(s.slotted) == 0 {
		return fmt.Errorf("%w: %s", game.ErrNoRecipe, id)
	}

	for _, slot := range s.slots {
		if c, ok := s.slotted[slot]; ok {
			s.held = append(s.held, c)
		}
	}
	s.slotted = make(map[string]state.Card)
	s.state = state.SituationOngoing
	s.recipe = recipe
	s.remaining = recipe.Duration
	s.slots = append([]string(nil), recipe.Slots...)
	w.calls = append(w.calls, fmt.Sprintf("start %s %s", id, recipe.ID))
	return nil
}

func (w *World) ConcludeSituation(ctx context.Context, id string) error {
	if err := w.act(ctx, "conclude"); err != nil {
		return err
	}
	defer w.mu.Unlock()
	s, err := w.openSituation(id)
	if err != nil {
		return err
	}
	if s.state != state.SituationComplete {
		return fmt.Errorf("%w: %s is %s", game.ErrSituationBusy, id, s.state)
	}
	for _, c := range s.output {
		w.table[c.ID] = c
	}
	s.output = nil
	s.state = state.SituationIdle
	s.recipe = nil
	s.slots = append([]string(nil), s.def.Slots...)
	w.calls = append(w.calls, "conclude "+id)
	return nil
}

func (w *World) ChooseMansus(ctx context.Context, face string) error {
	if err := w.act(ctx, "mansus"); err != nil {
		return err
	}
	defer w.mu.Unlock()
	if w.mansus == nil {
		return game.ErrNoMansus
	}
	if !contains(w.mansus.Faces, face) {
		return fmt.Errorf("%w: %s", game.ErrUnknownMansusFace, face)
	}
	s := w.situations[w.mansus.Situation]
	w.mansus = nil
	s.output = append(s.output, w.newCard(CardDef{Element: face}))
	w.resolve(s)
	w.calls = append(w.calls, "mansus "+face)
	return nil
}

func (w *World) Tidy(ctx context.Context) error {
	if err := w.act(ctx, "tidy"); err != nil {
		return err
	}
	defer w.mu.Unlock()
	w.tidies++
	w.calls = append(w.calls, "tidy")
	return nil
}

func satisfies(totals, requires map[string]int) bool {
	for k, v := range requires {
		if totals[k] < v {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
