// Package events lists well-known Bedrock Edition event names as constants.
// This is a representative subset used by sample registrations and tests,
// not an exhaustive catalogue of every event the game can stream.
package events

const (
	PlayerMessage    = "PlayerMessage"
	PlayerTravelled  = "PlayerTravelled"
	PlayerTransform  = "PlayerTransform"
	PlayerDeath      = "PlayerDeath"
	PlayerJoin       = "PlayerJoin"
	ItemAcquired     = "ItemAcquired"
	ItemUsed         = "ItemUsed"
	ItemCrafted      = "ItemCrafted"
	BlockBroken      = "BlockBroken"
	BlockPlaced      = "BlockPlaced"
	MobKilled        = "MobKilled"
	EntitySpawned    = "EntitySpawned"
	AwardAchievement = "AwardAchievement"
	WorldLoaded      = "WorldLoaded"
)
