// Package visitors renders anonymous display names for sessions so dashboards
// never expose the raw client token.
package visitors

import "hash/fnv"

var visitorAdjectives = []string{
	"Curious", "Happy", "Clever", "Wise", "Playful", "Brave", "Swift", "Gentle", "Smart", "Busy",
	"Daring", "Bold", "Lively", "Vibrant", "Agile", "Nimble", "Quick", "Brisk", "Zippy", "Bright",
	"Radiant", "Glowing", "Cheerful", "Joyful", "Merry", "Jolly", "Creative", "Inventive", "Artistic", "Elegant",
	"Graceful", "Stylish", "Friendly", "Kind", "Warm", "Cordial", "Magical", "Charming", "Peaceful", "Calm",
	"Serene", "Quiet", "Relaxed", "Patient", "Sunny", "Cosmic", "Dreamy", "Honest", "Loyal", "Witty",
}

var visitorAnimals = []string{
	"Panda", "Fox", "Owl", "Otter", "Lion", "Eagle", "Deer", "Raven", "Beaver", "Koala",
	"Sloth", "Hamster", "Cat", "Bear", "Penguin", "Kangaroo", "Parrot", "Giraffe", "Duck", "Raccoon",
	"Elephant", "Monkey", "Gorilla", "Leopard", "Camel", "Meerkat", "Goat", "Llama", "Squirrel", "Rabbit",
	"Hedgehog", "Tiger", "Wolf", "Falcon", "Hawk", "Dolphin", "Whale", "Seahorse", "Turtle", "Octopus",
	"Seal", "Walrus", "Crab", "Lobster", "Swan", "Crane", "Heron", "Finch", "Sparrow", "Dove",
}

// VisitorAlias returns an anonymized display name for the given session token.
// The same token always maps to the same alias.
func VisitorAlias(sessionID string) string {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	index := int(h.Sum32())

	adjIndex := index % len(visitorAdjectives)
	animalIndex := (index / len(visitorAdjectives)) % len(visitorAnimals)

	return visitorAdjectives[adjIndex] + " " + visitorAnimals[animalIndex]
}
