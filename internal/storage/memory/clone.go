package memory

import "github.com/vladislavdragonenkov/coffeeshop/internal/domain"

// Хранилище отдаёт и принимает копии документов: вложенные срезы не должны разделяться с вызывающим кодом.

func cloneOptions(src []domain.SelectedOption) []domain.SelectedOption {
	if src == nil {
		return nil
	}
	dst := make([]domain.SelectedOption, len(src))
	copy(dst, src)
	return dst
}

func cloneCustomer(src domain.Customer) domain.Customer {
	dst := src
	if src.Addresses != nil {
		dst.Addresses = make([]domain.Address, len(src.Addresses))
		copy(dst.Addresses, src.Addresses)
	}
	if src.Cart != nil {
		dst.Cart = make([]domain.CartItem, len(src.Cart))
		for i, item := range src.Cart {
			item.Options = cloneOptions(item.Options)
			dst.Cart[i] = item
		}
	}
	if src.Preferences.LastPayment != nil {
		lp := *src.Preferences.LastPayment
		dst.Preferences.LastPayment = &lp
	}
	return dst
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	if src.Sizes != nil {
		dst.Sizes = make([]domain.Size, len(src.Sizes))
		copy(dst.Sizes, src.Sizes)
	}
	if src.Options != nil {
		dst.Options = make([]domain.Option, len(src.Options))
		copy(dst.Options, src.Options)
	}
	return dst
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	if src.Items != nil {
		dst.Items = make([]domain.OrderItem, len(src.Items))
		for i, item := range src.Items {
			item.Options = cloneOptions(item.Options)
			dst.Items[i] = item
		}
	}
	return dst
}

func cloneMail(src domain.Mail) domain.Mail {
	dst := src
	dst.To = append([]string(nil), src.To...)
	return dst
}
