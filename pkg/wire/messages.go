package wire

// EncodeConnectionEvent acknowledges a new connection to the peer.
func EncodeConnectionEvent(b *BitBuffer, peer uint32) *BitBuffer {
	return b.AddEntityHeader(peer, OpConnectionEvent).AddUint(uint32(OpOk))
}

// EncodeSpawnRequest asks the server for an entity of the given spawn type.
// The id is unknown to the client and sent as zero.
func EncodeSpawnRequest(b *BitBuffer, spawnType int32) *BitBuffer {
	return b.AddEntityHeader(0, OpSpawn).AddInt(spawnType)
}

func EncodeDestroy(b *BitBuffer, id uint32) *BitBuffer {
	return b.AddEntityHeader(id, OpDestroy)
}
