package usecase

import (
	"context"
	"errors"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジック。
// どの操作も1トランザクションで行う。
type CartUsecase struct {
	tx repo.TransactionManager
}

func NewCartUsecase(tx repo.TransactionManager) *CartUsecase {
	return &CartUsecase{tx: tx}
}

// 価格は現在の商品価格（注文時にスナップショットされる）
type CartItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	// 削除・非公開になった商品はfalse（チェックアウトできない）
	Available bool `json:"available"`
}

type CartOutput struct {
	CartID int64            `json:"cart_id"`
	Items  []CartItemOutput `json:"items"`
	Total  decimal.Decimal  `json:"total"`
}

type AddCartItemInput struct {
	ProductID int64
	Quantity  int64
}

// カート取得（無ければアクティブなカートを作って空を返す）
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewAppError(KindUnauthorized, "unauthorized")
	}

	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateActiveByUserID(ctx, userID)
		if err != nil {
			return internalError(err)
		}
		out, err = buildCart(ctx, r, cart.ID)
		return err
	})
	if err != nil {
		return CartOutput{}, err
	}
	return out, nil
}

// 追加（同じ商品は数量を上書き）
func (u *CartUsecase) AddItem(ctx context.Context, userID int64, in AddCartItemInput) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewAppError(KindUnauthorized, "unauthorized")
	}
	if in.ProductID <= 0 {
		return CartOutput{}, NewAppError(KindValidation, "invalid product_id")
	}
	if in.Quantity < 1 {
		return CartOutput{}, NewAppError(KindValidation, "invalid quantity")
	}

	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 商品チェック（公開のみ）
		p, err := r.Products().FindByID(ctx, in.ProductID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
			return productError(KindNotFound, in.ProductID, "product %d not found")
		}
		if err != nil {
			return internalError(err)
		}

		//ここでの在庫チェックは目安。確定はチェックアウト時
		if in.Quantity > p.Stock {
			return productError(KindInsufficientStock, in.ProductID, "insufficient stock for product %d")
		}

		cart, err := r.Carts().GetOrCreateActiveByUserID(ctx, userID)
		if err != nil {
			return internalError(err)
		}
		if _, err := r.CartItems().UpsertQuantity(ctx, cart.ID, in.ProductID, in.Quantity); err != nil {
			return internalError(err)
		}

		out, err = buildCart(ctx, r, cart.ID)
		return err
	})
	if err != nil {
		return CartOutput{}, err
	}
	return out, nil
}

func (u *CartUsecase) RemoveItem(ctx context.Context, userID int64, productID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewAppError(KindUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return CartOutput{}, NewAppError(KindValidation, "invalid product_id")
	}

	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewAppError(KindNotFound, "cart not found")
		}
		if err != nil {
			return internalError(err)
		}

		err = r.CartItems().DeleteByCartAndProduct(ctx, cart.ID, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return productError(KindNotFound, productID, "product %d is not in the cart")
		}
		if err != nil {
			return internalError(err)
		}

		out, err = buildCart(ctx, r, cart.ID)
		return err
	})
	if err != nil {
		return CartOutput{}, err
	}
	return out, nil
}

// 明細＋現在の商品情報
func buildCart(ctx context.Context, r repo.TxRepos, cartID int64) (CartOutput, error) {
	items, err := r.CartItems().ListByCartID(ctx, cartID)
	if err != nil {
		return CartOutput{}, internalError(err)
	}
	products, err := r.Products().FindByIDs(ctx, cartProductIDs(items))
	if err != nil {
		return CartOutput{}, internalError(err)
	}

	out := CartOutput{CartID: cartID, Items: make([]CartItemOutput, 0, len(items)), Total: decimal.Zero}
	for _, it := range items {
		p, ok := products[it.ProductID]
		line := CartItemOutput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     decimal.Zero,
			Subtotal:  decimal.Zero,
			Available: ok && p.IsActive,
		}
		if ok {
			line.Name = p.Name
			line.Price = p.Price
			line.Subtotal = model.LineSubtotal(p.Price, it.Quantity)
			out.Total = out.Total.Add(line.Subtotal)
		}
		out.Items = append(out.Items, line)
	}
	return out, nil
}

func cartProductIDs(items []model.CartItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}
