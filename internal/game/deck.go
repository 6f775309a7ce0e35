package game

import (
	"math/rand"

	"example.com/morghi/internal/model"
)

// Composition is the number of copies of each card in a fresh deck.
var Composition = map[model.Card]int{
	model.Hen:     11,
	model.Rooster: 11,
	model.Nest:    11,
	model.Fox:     7,
	model.Snake:   4,
	model.Trap:    6,
}

// Deck draws from the top of cards; played and discarded cards go to the
// reserve and are shuffled back in when the deck runs dry.
type Deck struct {
	cards   []model.Card
	reserve []model.Card
	shuffle func([]model.Card)
}

func shuffleCards(cards []model.Card) {
	rand.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
}

// NewDeck builds a full deck. A nil shuffle uses math/rand.
func NewDeck(shuffle func([]model.Card)) *Deck {
	if shuffle == nil {
		shuffle = shuffleCards
	}
	d := &Deck{shuffle: shuffle}
	for _, c := range model.AllCards {
		for i := 0; i < Composition[c]; i++ {
			d.cards = append(d.cards, c)
		}
	}
	d.shuffle(d.cards)
	return d
}

// Draw takes up to n cards. It returns fewer only when deck and reserve are
// both exhausted.
func (d *Deck) Draw(n int) []model.Card {
	if len(d.cards) < n {
		d.refill()
	}
	if n > len(d.cards) {
		n = len(d.cards)
	}
	out := append([]model.Card(nil), d.cards[:n]...)
	d.cards = d.cards[n:]
	return out
}

// Discard returns cards to the reserve.
func (d *Deck) Discard(cards ...model.Card) {
	d.reserve = append(d.reserve, cards...)
}

func (d *Deck) refill() {
	d.shuffle(d.reserve)
	d.cards = append(d.cards, d.reserve...)
	d.reserve = nil
}
