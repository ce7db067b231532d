package wormhole

// wordlist holds the 256 code words. Each word encodes one byte of the
// code password. The list is part of the protocol: reordering it changes
// every password.
var wordlist = [256]string{
	"acorn", "adobe", "agent", "alarm", "album", "alpha", "amber", "anchor",
	"angle", "apple", "apron", "arbor", "arena", "armor", "arrow", "aspen",
	"atlas", "attic", "autumn", "avocado", "badge", "bagel", "baker", "bamboo",
	"banjo", "barley", "basin", "basket", "beacon", "beaver", "berry", "bison",
	"blanket", "blossom", "bonfire", "border", "bottle", "breeze", "brick", "bridge",
	"bronze", "bucket", "buffalo", "bugle", "bundle", "butter", "cabin", "cactus",
	"camel", "candle", "canoe", "canyon", "carbon", "cargo", "carpet", "castle",
	"cedar", "cello", "chalk", "cherry", "chess", "cider", "cinder", "circus",
	"citrus", "clover", "cobalt", "cocoa", "comet", "copper", "coral", "cotton",
	"cougar", "crane", "crater", "crayon", "cricket", "crystal", "cube", "dagger",
	"daisy", "delta", "desert", "diamond", "dingo", "dolphin", "domino", "dragon",
	"drum", "eagle", "easel", "echo", "eclipse", "elbow", "ember", "emerald",
	"engine", "falcon", "feather", "fennel", "ferry", "fiddle", "fig", "flame",
	"flannel", "flint", "flute", "forest", "fossil", "fountain", "fox", "galaxy",
	"garden", "garlic", "gazelle", "gecko", "geyser", "ginger", "glacier", "globe",
	"goblet", "granite", "grape", "gravel", "guitar", "hammer", "harbor", "harvest",
	"hazel", "helmet", "heron", "hickory", "honey", "hornet", "iceberg", "igloo",
	"indigo", "island", "ivory", "jacket", "jaguar", "jasmine", "jelly", "jigsaw",
	"jungle", "kayak", "kettle", "kiwi", "koala", "ladder", "lagoon", "lantern",
	"laurel", "lemon", "lentil", "lily", "lizard", "lobster", "locket", "lotus",
	"magnet", "mango", "maple", "marble", "meadow", "melon", "meteor", "mint",
	"mitten", "monkey", "mosaic", "moss", "nectar", "needle", "nickel", "nutmeg",
	"oasis", "ocean", "olive", "onyx", "orbit", "orchid", "otter", "oyster",
	"paddle", "panda", "papaya", "parrot", "pebble", "pelican", "pepper", "piano",
	"pickle", "pigeon", "pillow", "pine", "planet", "plum", "pocket", "polar",
	"poppy", "puffin", "pumpkin", "puzzle", "quartz", "quill", "rabbit", "radish",
	"raven", "reef", "ribbon", "river", "robin", "rocket", "saddle", "saffron",
	"salmon", "sandal", "satin", "scarf", "shadow", "shell", "silver", "sketch",
	"sleet", "socket", "spider", "spruce", "squid", "summit", "sunset", "swan",
	"tango", "teapot", "thistle", "thunder", "tiger", "timber", "toast", "tomato",
	"topaz", "torch", "tulip", "tundra", "turtle", "tuxedo", "umbrella", "valley",
	"velvet", "violet", "wagon", "walnut", "walrus", "whale", "willow", "window",
}

var wordIndex = func() map[string]int {
	m := make(map[string]int, len(wordlist))
	for i, w := range wordlist {
		m[w] = i
	}
	return m
}()
