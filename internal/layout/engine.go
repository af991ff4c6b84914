// Package layout maps the global button list onto the physical key grid:
// fixed control keys, sticky placement, and wrap-around pagination.
package layout

// Item is one button's placement-relevant view.
type Item struct {
	// Sticky items occupy the first free slot on every page.
	Sticky bool
	// InPlace items stay pinned to the slot they occupied on the
	// previous build (recording or errored buttons must not move under
	// the operator's finger).
	InPlace bool
}

// PageRequest describes one layout build.
type PageRequest struct {
	Items []Item
	// PrevSlots maps item index to the slot it held on the previous
	// build; consulted only for in-place items.
	PrevSlots map[int]int
	Page      int
}

// Assignment is the result of a build: two consistent views of the same
// placement, plus the normalized page position.
type Assignment struct {
	SlotToItem map[int]int
	ItemToSlot map[int]int
	Page       int
	TotalPages int
}

// Engine carries the physical geometry: total slot count and the fixed
// control key positions.
type Engine struct {
	slots    int
	load     int
	pageUp   int
	pageDown int
}

// NewEngine derives the fixed control positions from the key grid: the
// load key sits at 0, page-up at the start of the second row, page-down at
// the start of the third. Six-key decks use 1 and 4 instead. Other
// geometries get no paging keys.
func NewEngine(keyCount, cols int) *Engine {
	e := &Engine{slots: keyCount, load: 0, pageUp: -1, pageDown: -1}
	switch {
	case keyCount >= 15:
		e.pageUp = cols
		e.pageDown = 2 * cols
	case keyCount == 6:
		e.pageUp = 1
		e.pageDown = 4
	}
	return e
}

func (e *Engine) Slots() int       { return e.slots }
func (e *Engine) LoadKey() int     { return e.load }
func (e *Engine) PageUpKey() int   { return e.pageUp }
func (e *Engine) PageDownKey() int { return e.pageDown }

// IsFixed reports whether slot is one of the reserved control keys.
func (e *Engine) IsFixed(slot int) bool {
	return slot == e.load || slot == e.pageUp || slot == e.pageDown
}

// BuildPage computes a full slot assignment. In-place items are re-pinned
// first, sticky items fill the lowest free slots in list order, and the
// remaining items paginate into whatever slots are left, wrapping the
// requested page modulo the total (negative pages wrap backwards).
func (e *Engine) BuildPage(req PageRequest) Assignment {
	asg := Assignment{
		SlotToItem: map[int]int{},
		ItemToSlot: map[int]int{},
		TotalPages: 1,
	}

	taken := map[int]bool{}
	for s := range e.fixedSlots() {
		taken[s] = true
	}

	var sticky, normal []int
	for i, item := range req.Items {
		switch {
		case item.InPlace:
			if slot, ok := req.PrevSlots[i]; ok && !taken[slot] && slot < e.slots {
				taken[slot] = true
				asg.SlotToItem[slot] = i
				asg.ItemToSlot[i] = slot
			}
		case item.Sticky:
			sticky = append(sticky, i)
		default:
			normal = append(normal, i)
		}
	}

	var free []int
	for s := 0; s < e.slots; s++ {
		if !taken[s] {
			free = append(free, s)
		}
	}
	for n, i := range sticky {
		if n >= len(free) {
			break
		}
		slot := free[n]
		taken[slot] = true
		asg.SlotToItem[slot] = i
		asg.ItemToSlot[i] = slot
	}

	var pageSlots []int
	for s := 0; s < e.slots; s++ {
		if !taken[s] {
			pageSlots = append(pageSlots, s)
		}
	}
	if len(normal) > 0 && len(pageSlots) > 0 {
		asg.TotalPages = (len(normal) + len(pageSlots) - 1) / len(pageSlots)
	}
	asg.Page = floorMod(req.Page, asg.TotalPages)

	start := asg.Page * len(pageSlots)
	for n, slot := range pageSlots {
		idx := start + n
		if idx >= len(normal) {
			break
		}
		i := normal[idx]
		asg.SlotToItem[slot] = i
		asg.ItemToSlot[i] = slot
	}
	return asg
}

func (e *Engine) fixedSlots() map[int]bool {
	fixed := map[int]bool{e.load: true}
	if e.pageUp >= 0 {
		fixed[e.pageUp] = true
	}
	if e.pageDown >= 0 {
		fixed[e.pageDown] = true
	}
	return fixed
}

func floorMod(a, n int) int {
	if n <= 0 {
		return 0
	}
	return ((a % n) + n) % n
}
