package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
)

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

// Real-time rooms.
const RoomAdmin = "admin-room"

func OrderRoom(orderID string) string { return "order-" + orderID }
