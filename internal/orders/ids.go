package orders

import (
	"fmt"

	"github.com/google/uuid"
)

// orderNamespace scopes deterministic order ids.
var orderNamespace = uuid.MustParse("6f1c2b0e-5a43-4d5e-9c1f-0b7a6e3d2c41")

func lineID(orderID string, idx int) string {
	return uuid.NewSHA1(orderNamespace, []byte(fmt.Sprintf("%s/line/%d", orderID, idx))).String()
}

// AttemptID is the order id of one billing attempt. The same subscription,
// period and attempt number always give the same id, so a pass that charged
// but rolled back replays the same idempotency key on the next pass.
func AttemptID(subscriptionID, periodEnd string, attempt int) string {
	return uuid.NewSHA1(orderNamespace, []byte(fmt.Sprintf("%s:%s:%d", subscriptionID, periodEnd, attempt))).String()
}

func IdempotencyKey(subscriptionID, orderID string) string {
	return "sub_" + subscriptionID + "_order_" + orderID
}
